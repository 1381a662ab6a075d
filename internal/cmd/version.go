package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaldhq/skald/internal/server/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := handlers.GetVersionInfo()
		fmt.Printf("skald %s", info.Version)
		if info.Commit != "" {
			fmt.Printf(" (%s)", info.Commit)
		}
		if info.Date != "" {
			fmt.Printf(" built %s", info.Date)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
