package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skaldhq/skald/internal/config"
	"github.com/skaldhq/skald/internal/observability"
	"github.com/skaldhq/skald/internal/queue"
	"github.com/skaldhq/skald/internal/server"
	"github.com/skaldhq/skald/internal/server/handlers"
	"github.com/skaldhq/skald/pkg/capability/openai"
	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/pipeline"
	"github.com/skaldhq/skald/pkg/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

With queue mode "local" (the default), jobs execute on goroutines in this
process. With queue mode "redis", jobs are enqueued for "skald worker"
processes and this server only accepts and reports them.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.GetConfig()
	log := observability.Logger

	store, storeChecker, err := buildStore(cfg)
	if err != nil {
		return err
	}

	deps, err := buildPipeline(ctx, cfg, store)
	if err != nil {
		return err
	}

	var dispatcher pipeline.Dispatcher
	var local *pipeline.LocalDispatcher
	switch cfg.Queue.Mode {
	case "redis":
		manager := queue.NewManager(asynqRedisOpt(cfg), cfg.Pipeline.JobTimeout, log)
		defer func() { _ = manager.Close() }()
		dispatcher = manager
	default:
		local = pipeline.NewLocalDispatcher(deps.runner, deps.factory)
		dispatcher = local
	}

	coord := pipeline.NewCoordinator(store, dispatcher, log)

	health := handlers.InitHealthManager(handlers.GetVersionInfo().Version)
	health.RegisterChecker("store", storeChecker)
	health.RegisterChecker("provider", providerConfigChecker{cfg: cfg})

	jobs := handlers.NewJobs(coord, cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithJobs(jobs),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	log.Info("starting server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("queue_mode", cfg.Queue.Mode),
		zap.String("store_backend", cfg.Store.Backend),
	)

	if err := srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	if local != nil {
		log.Info("draining in-flight jobs")
		local.Wait()
	}
	log.Info("server stopped")
	return nil
}

// pipelineDeps bundles the runner and factory both serve and worker need.
type pipelineDeps struct {
	runner  *pipeline.Runner
	factory *pipeline.Factory
}

func buildPipeline(ctx context.Context, cfg *config.Config, store jobstore.Store) (*pipelineDeps, error) {
	client, err := openai.New(openai.Config{
		BaseURL:             cfg.Provider.BaseURL,
		APIKey:              cfg.Provider.APIKey,
		TranscribeModel:     cfg.Provider.TranscribeModel,
		SummarizeModel:      cfg.Provider.SummarizeModel,
		RequestTimeout:      cfg.Provider.RequestTimeout,
		RateLimit:           cfg.Provider.RateLimit,
		MaxCompletionTokens: cfg.Provider.MaxCompletionTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("build provider client: %w", err)
	}

	resolver, err := buildResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pipeCfg := pipeline.Config{
		AudioChunkBytes: cfg.Pipeline.AudioChunkBytes,
		TextChunkChars:  cfg.Pipeline.TextChunkChars,
	}
	retryCfg := pipeline.RetryConfig{
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		MaxBackoff:     cfg.Pipeline.MaxBackoff,
		JobTimeout:     cfg.Pipeline.JobTimeout,
	}

	return &pipelineDeps{
		runner:  pipeline.NewRunner(store, pipeCfg, retryCfg, observability.Logger),
		factory: pipeline.NewFactory(pipeCfg, store, resolver, client, client),
	}, nil
}

func buildStore(cfg *config.Config) (jobstore.Store, handlers.HealthChecker, error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Addr,
			Password: cfg.Store.Pass,
			DB:       cfg.Store.DB,
		})
		store := jobstore.NewRedis(rdb, cfg.Store.TTL)
		return store, redisStoreChecker{store: store}, nil
	default:
		return jobstore.NewMemory(), alwaysHealthyChecker{}, nil
	}
}

func buildResolver(ctx context.Context, cfg *config.Config) (source.Resolver, error) {
	allow, err := source.NewAllowlist(cfg.Source.Includes, cfg.Source.Excludes)
	if err != nil {
		return nil, fmt.Errorf("build source allow-list: %w", err)
	}

	srcCfg := source.Config{
		Allow:       allow,
		HTTPTimeout: cfg.Source.HTTPTimeout,
		MaxBytes:    cfg.Source.MaxBytes,
	}
	if cfg.Source.S3.Enabled {
		fetcher, err := source.NewS3Fetcher(ctx, source.S3Config{
			Region:          cfg.Source.S3.Region,
			Endpoint:        cfg.Source.S3.Endpoint,
			Profile:         cfg.Source.S3.Profile,
			AccessKeyID:     cfg.Source.S3.AccessKeyID,
			SecretAccessKey: cfg.Source.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Source.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("build s3 fetcher: %w", err)
		}
		srcCfg.Objects = fetcher
	}

	return source.NewResolver(srcCfg)
}

func asynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Pass,
		DB:       cfg.Store.DB,
	}
}

// alwaysHealthyChecker reports health for dependencies with no failure mode,
// like the in-memory store.
type alwaysHealthyChecker struct{}

func (alwaysHealthyChecker) CheckHealth(ctx context.Context) error { return nil }

// redisStoreChecker pings the Redis job store.
type redisStoreChecker struct {
	store *jobstore.Redis
}

func (c redisStoreChecker) CheckHealth(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// providerConfigChecker verifies the capability provider is configured. It
// does not call the provider: a health probe must not spend quota.
type providerConfigChecker struct {
	cfg *config.Config
}

func (c providerConfigChecker) CheckHealth(ctx context.Context) error {
	if c.cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider API key is not configured")
	}
	return nil
}
