package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/skaldhq/skald/internal/cmd"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cmd.SetVersionInfo(version, commit, date)
	cmd.Execute(context.Background())
}
