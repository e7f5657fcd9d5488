package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Documents  DocumentsConfig  `yaml:"documents" mapstructure:"documents"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DocumentsConfig configures where document bytes are resolved from.
type DocumentsConfig struct {
	Root        string `yaml:"root" mapstructure:"root"`
	FTPURL      string `yaml:"ftp_url" mapstructure:"ftp_url"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPTimeout  int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the structuring stage.
type AnthropicConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	Model     string  `yaml:"model" mapstructure:"model"`
	MaxTokens int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateRPS   float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// PipelineConfig configures session orchestration behavior.
type PipelineConfig struct {
	// BlockingThreshold is the clarification priority at or above which a
	// pending item prevents session completion.
	BlockingThreshold int `yaml:"blocking_threshold" mapstructure:"blocking_threshold"`
	// AutoResolveThreshold: pending items strictly below this priority whose
	// extracted value sits inside their benchmark range resolve automatically.
	AutoResolveThreshold int `yaml:"auto_resolve_threshold" mapstructure:"auto_resolve_threshold"`
	// PausePolicy is "batch_end" (pause only once the queue is exhausted) or
	// "eager" (pause as soon as a blocking clarification is raised).
	PausePolicy string `yaml:"pause_policy" mapstructure:"pause_policy"`
	// MaxConcurrentSessions bounds session run loops executing at once.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
	// EventBufferSize is the per-subscriber progress channel depth.
	EventBufferSize int `yaml:"event_buffer_size" mapstructure:"event_buffer_size"`
	// SessionTTLMinutes: terminal sessions idle longer than this are evicted.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	// BenchmarksPath points at the YAML file of per-field benchmark ranges.
	BenchmarksPath string `yaml:"benchmarks_path" mapstructure:"benchmarks_path"`
}

// ResilienceConfig tunes the retry and circuit-breaker behavior shared by all
// external calls (Anthropic structuring requests, FTP document fetches).
type ResilienceConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs  int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intake.db")
	v.SetDefault("documents.root", ".")
	v.SetDefault("documents.ftp_timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.rate_rps", 2)
	v.SetDefault("anthropic.rate_burst", 4)
	v.SetDefault("pipeline.blocking_threshold", 9)
	v.SetDefault("pipeline.auto_resolve_threshold", 4)
	v.SetDefault("pipeline.pause_policy", "batch_end")
	v.SetDefault("pipeline.max_concurrent_sessions", 4)
	v.SetDefault("pipeline.event_buffer_size", 256)
	v.SetDefault("pipeline.session_ttl_minutes", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.backoff_multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Pipeline.PausePolicy {
	case "batch_end", "eager":
	default:
		return eris.Errorf("config: unknown pause_policy %q", c.Pipeline.PausePolicy)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Pipeline.BlockingThreshold < 1 || c.Pipeline.BlockingThreshold > 10 {
		return eris.Errorf("config: blocking_threshold %d out of range 1-10", c.Pipeline.BlockingThreshold)
	}
	if c.Resilience.JitterFraction < 0 || c.Resilience.JitterFraction > 1 {
		return eris.Errorf("config: jitter_fraction %v out of range 0-1", c.Resilience.JitterFraction)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
