package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"liquidation-zone-alerts/internal/logging"
	"liquidation-zone-alerts/internal/proximity"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	FailureBackoff  time.Duration `mapstructure:"failure_backoff"`
}

// MarketConfig covers upstream price and heatmap access.
type MarketConfig struct {
	Symbol         string        `mapstructure:"symbol"`
	PriceBaseURL   string        `mapstructure:"price_base_url"`
	HeatmapBaseURL string        `mapstructure:"heatmap_base_url"`
	HeatmapAPIKey  string        `mapstructure:"heatmap_api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// TierConfig gates one severity level.
type TierConfig struct {
	DistancePct float64 `mapstructure:"distance_pct"`
	MinDensity  float64 `mapstructure:"min_density"`
}

// ThresholdsConfig holds the three severity tiers.
type ThresholdsConfig struct {
	Critical TierConfig `mapstructure:"critical"`
	Warning  TierConfig `mapstructure:"warning"`
	Info     TierConfig `mapstructure:"info"`
}

// CooldownConfig bounds alert emission frequency.
type CooldownConfig struct {
	PerZoneMinutes int           `mapstructure:"per_zone_minutes"`
	MaxDailyAlerts int           `mapstructure:"max_daily_alerts"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// AlertingConfig defines thresholds, rate limits, and channel routing.
type AlertingConfig struct {
	Thresholds      ThresholdsConfig `mapstructure:"thresholds"`
	Cooldown        CooldownConfig   `mapstructure:"cooldown"`
	DispatchTimeout time.Duration    `mapstructure:"dispatch_timeout"`
	Telegram        TelegramConfig   `mapstructure:"telegram"`
	Discord         DiscordConfig    `mapstructure:"discord"`
	Email           EmailConfig      `mapstructure:"email"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	BotToken       string   `mapstructure:"bot_token"`
	ChatID         string   `mapstructure:"chat_id"`
	APIBase        string   `mapstructure:"api_base"`
	SeverityFilter []string `mapstructure:"severity_filter"`
}

// DiscordConfig 描述 Discord Webhook 告警参数。
type DiscordConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	WebhookURL     string   `mapstructure:"webhook_url"`
	SeverityFilter []string `mapstructure:"severity_filter"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	From           string   `mapstructure:"from"`
	To             []string `mapstructure:"to"`
	StartTLS       bool     `mapstructure:"starttls"`
	SeverityFilter []string `mapstructure:"severity_filter"`
}

// RetentionConfig bounds the alert history window.
type RetentionConfig struct {
	AlertHistoryDays int `mapstructure:"alert_history_days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIQWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("app.name", "liqwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c697170))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.failure_backoff", "30s")

	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.price_base_url", "https://api.binance.com")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "liqwatcher/1.0")

	v.SetDefault("alerting.thresholds.critical.distance_pct", 1.0)
	v.SetDefault("alerting.thresholds.critical.min_density", 10_000_000.0)
	v.SetDefault("alerting.thresholds.warning.distance_pct", 3.0)
	v.SetDefault("alerting.thresholds.warning.min_density", 5_000_000.0)
	v.SetDefault("alerting.thresholds.info.distance_pct", 5.0)
	v.SetDefault("alerting.thresholds.info.min_density", 1_000_000.0)

	v.SetDefault("alerting.cooldown.per_zone_minutes", 30)
	v.SetDefault("alerting.cooldown.max_daily_alerts", 20)
	v.SetDefault("alerting.cooldown.max_attempts", 3)
	v.SetDefault("alerting.cooldown.retry_delay", "100ms")

	v.SetDefault("alerting.dispatch_timeout", "10s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.starttls", true)

	v.SetDefault("retention.alert_history_days", 30)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
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

// Thresholds converts the configured tiers into engine thresholds.
func (c *Config) Thresholds() proximity.Thresholds {
	tier := func(t TierConfig) proximity.Tier {
		return proximity.Tier{
			DistancePct: decimal.NewFromFloat(t.DistancePct),
			MinDensity:  decimal.NewFromFloat(t.MinDensity),
		}
	}
	return proximity.Thresholds{
		Critical: tier(c.Alerting.Thresholds.Critical),
		Warning:  tier(c.Alerting.Thresholds.Warning),
		Info:     tier(c.Alerting.Thresholds.Info),
	}
}

// SeverityFilters builds the channel-name to allowed-severities map
// consumed by the dispatcher. Channels with an empty filter are omitted
// and therefore receive every alert.
func (c *Config) SeverityFilters() (map[string][]proximity.Severity, error) {
	filters := make(map[string][]proximity.Severity)
	entries := []struct {
		name string
		raw  []string
	}{
		{"telegram", c.Alerting.Telegram.SeverityFilter},
		{"discord", c.Alerting.Discord.SeverityFilter},
		{"email", c.Alerting.Email.SeverityFilter},
	}
	for _, entry := range entries {
		if len(entry.raw) == 0 {
			continue
		}
		parsed := make([]proximity.Severity, 0, len(entry.raw))
		for _, raw := range entry.raw {
			severity, err := proximity.ParseSeverity(raw)
			if err != nil {
				return nil, fmt.Errorf("alerting.%s.severity_filter: %w", entry.name, err)
			}
			parsed = append(parsed, severity)
		}
		filters[entry.name] = parsed
	}
	return filters, nil
}

// Validate performs sanity checks on the configuration values. It runs
// once at load; the engine assumes validated thresholds afterwards.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Retention.AlertHistoryDays <= 0 {
		return fmt.Errorf("retention.alert_history_days must be greater than zero")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol 必须配置")
	}

	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("alerting.thresholds: %w", err)
	}

	if c.Alerting.Cooldown.PerZoneMinutes < 1 {
		return fmt.Errorf("alerting.cooldown.per_zone_minutes must be at least 1")
	}
	if c.Alerting.Cooldown.MaxDailyAlerts < 1 {
		return fmt.Errorf("alerting.cooldown.max_daily_alerts must be at least 1")
	}

	if !c.Alerting.Telegram.Enabled && !c.Alerting.Discord.Enabled && !c.Alerting.Email.Enabled {
		return fmt.Errorf("at least one alerting channel must be enabled")
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url 必须配置")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email.host must be configured")
		}
		if c.Alerting.Email.From == "" || len(c.Alerting.Email.To) == 0 {
			return fmt.Errorf("alerting.email.from and alerting.email.to must be configured")
		}
	}

	if _, err := c.SeverityFilters(); err != nil {
		return err
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
