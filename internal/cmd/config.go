package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skaldhq/skald/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration after applying defaults, the
config file, environment variables, and flags. Secrets are redacted.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

const redacted = "[redacted]"

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := *config.GetConfig()

	if cfg.Provider.APIKey != "" {
		cfg.Provider.APIKey = redacted
	}
	if cfg.Store.Pass != "" {
		cfg.Store.Pass = redacted
	}
	if cfg.Source.S3.SecretAccessKey != "" {
		cfg.Source.S3.SecretAccessKey = redacted
	}

	out, err := yaml.Marshal(renderConfig(cfg))
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// renderConfig converts the config to a plain map so YAML output follows the
// file's key naming instead of Go field names.
func renderConfig(cfg config.Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             cfg.Server.Host,
			"port":             cfg.Server.Port,
			"read_timeout":     cfg.Server.ReadTimeout.String(),
			"write_timeout":    cfg.Server.WriteTimeout.String(),
			"idle_timeout":     cfg.Server.IdleTimeout.String(),
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"profile": cfg.Logging.Profile,
		},
		"store": map[string]any{
			"backend":  cfg.Store.Backend,
			"addr":     cfg.Store.Addr,
			"password": cfg.Store.Pass,
			"db":       cfg.Store.DB,
			"ttl":      cfg.Store.TTL.String(),
		},
		"provider": map[string]any{
			"base_url":              cfg.Provider.BaseURL,
			"api_key":               cfg.Provider.APIKey,
			"transcribe_model":      cfg.Provider.TranscribeModel,
			"summarize_model":       cfg.Provider.SummarizeModel,
			"request_timeout":       cfg.Provider.RequestTimeout.String(),
			"rate_limit":            cfg.Provider.RateLimit,
			"max_completion_tokens": cfg.Provider.MaxCompletionTokens,
		},
		"pipeline": map[string]any{
			"audio_chunk_bytes": cfg.Pipeline.AudioChunkBytes,
			"text_chunk_chars":  cfg.Pipeline.TextChunkChars,
			"max_attempts":      cfg.Pipeline.MaxAttempts,
			"initial_backoff":   cfg.Pipeline.InitialBackoff.String(),
			"max_backoff":       cfg.Pipeline.MaxBackoff.String(),
			"job_timeout":       cfg.Pipeline.JobTimeout.String(),
		},
		"source": map[string]any{
			"includes":     cfg.Source.Includes,
			"excludes":     cfg.Source.Excludes,
			"max_bytes":    cfg.Source.MaxBytes,
			"http_timeout": cfg.Source.HTTPTimeout.String(),
			"s3": map[string]any{
				"enabled":           cfg.Source.S3.Enabled,
				"region":            cfg.Source.S3.Region,
				"endpoint":          cfg.Source.S3.Endpoint,
				"profile":           cfg.Source.S3.Profile,
				"access_key_id":     cfg.Source.S3.AccessKeyID,
				"secret_access_key": cfg.Source.S3.SecretAccessKey,
				"force_path_style":  cfg.Source.S3.ForcePathStyle,
			},
		},
		"uploads": map[string]any{
			"dir":       cfg.Uploads.Dir,
			"max_bytes": cfg.Uploads.MaxBytes,
		},
		"queue": map[string]any{
			"mode":        cfg.Queue.Mode,
			"concurrency": cfg.Queue.Concurrency,
		},
	}
}
