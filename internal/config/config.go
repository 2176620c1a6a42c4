package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"wallet-x-search/internal/logging"
)

// ErrMissingAPIKey is returned by RequireCredentials when no xAI key is set.
var ErrMissingAPIKey = errors.New("xai.api_key is required (set XAI_API_KEY)")

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	XAI        XAIConfig        `mapstructure:"xai"`
	Search     SearchConfig     `mapstructure:"search"`
	Input      InputConfig      `mapstructure:"input"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// XAIConfig covers the chat completion endpoint used for live X search.
type XAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	SearchSources  []string      `mapstructure:"search_sources"`
}

// SearchConfig tunes concurrency, retries and the shared request window.
type SearchConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryStep       time.Duration `mapstructure:"retry_step"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	RateMaxRequests int           `mapstructure:"rate_max_requests"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
}

// InputConfig controls wallet list parsing.
type InputConfig struct {
	WalletColumn string        `mapstructure:"wallet_column"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// CheckpointConfig controls resumable runs.
type CheckpointConfig struct {
	// Backend is "file" or "postgres".
	Backend  string `mapstructure:"backend"`
	Key      string `mapstructure:"key"`
	Path     string `mapstructure:"path"`
	Interval int    `mapstructure:"interval"`
	Resume   bool   `mapstructure:"resume"`
}

// OutputConfig controls the JSON-lines result sink.
type OutputConfig struct {
	Path         string `mapstructure:"path"`
	RawTextLimit int    `mapstructure:"raw_text_limit"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs watch mode.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines run notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot target.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("xai.api_key", "WALLETSEARCH_XAI_API_KEY", "XAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "walletsearch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("xai.base_url", "https://api.x.ai/v1")
	v.SetDefault("xai.model", "grok-4-fast")
	v.SetDefault("xai.request_timeout", "120s")
	v.SetDefault("xai.search_sources", []string{"x"})

	v.SetDefault("search.concurrency", 5)
	v.SetDefault("search.batch_delay", "1s")
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.retry_step", "2s")
	v.SetDefault("search.rate_window", "60s")
	v.SetDefault("search.rate_max_requests", 50)
	v.SetDefault("search.base_backoff", "60s")
	v.SetDefault("search.max_backoff", "300s")

	v.SetDefault("input.wallet_column", "wallet_address")
	v.SetDefault("input.fetch_timeout", "30s")

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.key", "x-wallet-search-checkpoint")
	v.SetDefault("checkpoint.path", "checkpoint.json")
	v.SetDefault("checkpoint.interval", 10)
	v.SetDefault("checkpoint.resume", true)

	v.SetDefault("output.path", "results.jsonl")
	v.SetDefault("output.raw_text_limit", 1000)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.batch_limit", 0)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x77616c6c))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_rows", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("search.concurrency must be greater than zero")
	}
	if c.Search.MaxRetries <= 0 {
		return fmt.Errorf("search.max_retries must be greater than zero")
	}
	if c.Search.RateWindow <= 0 || c.Search.RateMaxRequests <= 0 {
		return fmt.Errorf("search.rate_window and search.rate_max_requests must be greater than zero")
	}
	if c.Search.BatchDelay < 0 {
		return fmt.Errorf("search.batch_delay cannot be negative")
	}
	if c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("checkpoint.interval must be greater than zero")
	}
	switch c.Checkpoint.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("checkpoint.backend must be file or postgres, got %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("checkpoint.backend postgres requires database.dsn")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.BatchLimit < 0 {
		return fmt.Errorf("scheduler.batch_limit cannot be negative")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// RequireCredentials reports whether search commands can run.
func (c *Config) RequireCredentials() error {
	if strings.TrimSpace(c.XAI.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
