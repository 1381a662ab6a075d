package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skaldhq/skald/internal/config"
	"github.com/skaldhq/skald/internal/observability"
	"github.com/skaldhq/skald/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a job worker process",
	Long: `Run a worker that consumes queued jobs and executes them.

Requires queue mode "redis": workers pull tasks enqueued by the API
server and share its Redis job store, so results are visible to pollers
regardless of which process ran the job.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.GetConfig()
	log := observability.Logger

	if cfg.Queue.Mode != "redis" {
		return fmt.Errorf("worker requires queue mode redis, got %q", cfg.Queue.Mode)
	}

	store, _, err := buildStore(cfg)
	if err != nil {
		return err
	}

	deps, err := buildPipeline(ctx, cfg, store)
	if err != nil {
		return err
	}

	worker := queue.NewWorker(asynqRedisOpt(cfg), cfg.Queue.Concurrency, store, deps.runner, deps.factory, log)

	log.Info("starting worker",
		zap.Int("concurrency", cfg.Queue.Concurrency),
		zap.String("redis_addr", cfg.Store.Addr),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("stopping worker, waiting for in-flight jobs")
	worker.Shutdown()
	return nil
}
