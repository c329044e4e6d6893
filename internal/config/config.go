package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"threshold-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Cooldown   CooldownConfig   `mapstructure:"cooldown"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ThresholdsConfig locates the threshold sheet.
type ThresholdsConfig struct {
	CSVURL         string        `mapstructure:"csv_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FeedConfig covers quote feed access.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Cookie         string        `mapstructure:"cookie"`
	UserAgent      string        `mapstructure:"user_agent"`
	WatchCodes     []int         `mapstructure:"watch_codes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CooldownConfig governs alert suppression.
type CooldownConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	Duration time.Duration `mapstructure:"duration"`
	FailOpen bool          `mapstructure:"fail_open"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DatabaseConfig encapsulates the optional PostgreSQL alert audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	Retention       time.Duration `mapstructure:"retention"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PSXWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvKeys(v)

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
	v.SetDefault("app.name", "psxwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("thresholds.request_timeout", "30s")

	v.SetDefault("feed.base_url", "https://tradelinks.munirkhanani.com/api_new/getfeedbywatchtype")
	v.SetDefault("feed.user_agent", "Mozilla/5.0")
	v.SetDefault("feed.watch_codes", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	v.SetDefault("feed.request_timeout", "20s")

	v.SetDefault("cooldown.duration", "30m")
	v.SetDefault("cooldown.fail_open", false)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "0s")
}

// bindEnvKeys registers keys that have no default so AutomaticEnv can
// still surface them during Unmarshal. Viper only decodes keys it knows
// about; without an explicit bind, env-only values for these keys are
// silently dropped.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"thresholds.csv_url",
		"feed.cookie",
		"cooldown.redis_url",
		"alerting.telegram.bot_token",
		"alerting.telegram.chat_id",
		"database.dsn",
		"logging.time_format",
		"logging.caller",
		"logging.pretty",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
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
	if c.Cooldown.Duration <= 0 {
		return fmt.Errorf("cooldown.duration must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}
	if len(c.Feed.WatchCodes) == 0 {
		return fmt.Errorf("feed.watch_codes must not be empty")
	}
	for _, code := range c.Feed.WatchCodes {
		if code <= 0 {
			return fmt.Errorf("feed.watch_codes entries must be positive, got %d", code)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
