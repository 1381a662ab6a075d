// Package config loads service configuration with the precedence runtime
// overrides > environment > config file > defaults. Environment variables
// use the SKALD_ prefix with underscores for nesting, e.g.
// SKALD_SERVER_PORT or SKALD_PROVIDER_API_KEY.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "SKALD"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Provider ProviderConfig `mapstructure:"provider"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Source   SourceConfig   `mapstructure:"source"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the process loggers.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// StoreConfig selects and configures the job record store.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string        `mapstructure:"backend"`
	Addr    string        `mapstructure:"addr"`
	Pass    string        `mapstructure:"password"`
	DB      int           `mapstructure:"db"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ProviderConfig configures the capability provider.
type ProviderConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	APIKey              string        `mapstructure:"api_key"`
	TranscribeModel     string        `mapstructure:"transcribe_model"`
	SummarizeModel      string        `mapstructure:"summarize_model"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	RateLimit           float64       `mapstructure:"rate_limit"`
	MaxCompletionTokens int           `mapstructure:"max_completion_tokens"`
}

// PipelineConfig configures chunking, progress, and retries.
type PipelineConfig struct {
	AudioChunkBytes int           `mapstructure:"audio_chunk_bytes"`
	TextChunkChars  int           `mapstructure:"text_chunk_chars"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
}

// SourceConfig configures input resolution.
type SourceConfig struct {
	Includes    []string      `mapstructure:"includes"`
	Excludes    []string      `mapstructure:"excludes"`
	MaxBytes    int64         `mapstructure:"max_bytes"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	S3          S3Config      `mapstructure:"s3"`
}

// S3Config configures the S3 object fetcher.
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// UploadsConfig configures direct multipart intake.
type UploadsConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// QueueConfig selects the dispatch mode.
type QueueConfig struct {
	// Mode is "local" (in-process goroutines) or "redis" (asynq workers).
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration. An optional config file path may point at a
// YAML file; optional override maps take precedence over everything else.
// The loaded config becomes the one GetConfig returns.
func Load(ctx context.Context, configFile string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// Runtime overrides use Set, the highest precedence level, so they win
	// over environment and file values.
	for _, override := range overrides {
		applyOverrides(v, "", override)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil before
// the first Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid store backend %q (want memory or redis)", c.Store.Backend)
	}
	switch c.Queue.Mode {
	case "local", "redis":
	default:
		return fmt.Errorf("invalid queue mode %q (want local or redis)", c.Queue.Mode)
	}
	if c.Queue.Mode == "redis" && c.Store.Backend != "redis" {
		return fmt.Errorf("queue mode redis requires the redis store backend")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max_attempts must be at least 1")
	}
	return nil
}

func applyOverrides(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.password", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.ttl", "168h")

	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.transcribe_model", "whisper-1")
	v.SetDefault("provider.summarize_model", "gpt-4.1-mini")
	v.SetDefault("provider.request_timeout", "5m")
	v.SetDefault("provider.rate_limit", 0.0)
	v.SetDefault("provider.max_completion_tokens", 2000)

	v.SetDefault("pipeline.audio_chunk_bytes", 24<<20)
	v.SetDefault("pipeline.text_chunk_chars", 16000)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.initial_backoff", "2s")
	v.SetDefault("pipeline.max_backoff", "30s")
	v.SetDefault("pipeline.job_timeout", "30m")

	v.SetDefault("source.includes", []string{"**"})
	v.SetDefault("source.excludes", []string{})
	v.SetDefault("source.max_bytes", int64(1<<30))
	v.SetDefault("source.http_timeout", "2m")
	v.SetDefault("source.s3.enabled", false)
	v.SetDefault("source.s3.region", "")
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.profile", "")
	v.SetDefault("source.s3.access_key_id", "")
	v.SetDefault("source.s3.secret_access_key", "")
	v.SetDefault("source.s3.force_path_style", false)

	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_bytes", int64(200<<20))

	v.SetDefault("queue.mode", "local")
	v.SetDefault("queue.concurrency", 4)
}
