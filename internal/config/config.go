package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"energypulse/internal/logging"
	"energypulse/internal/model"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
	Server     ServerConfig     `mapstructure:"server"`
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
	ApplicationName string        `mapstructure:"application_name"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	ReadLimit       int           `mapstructure:"read_limit"`
	// Timezone of the wall-clock observation timestamps.
	Timezone string `mapstructure:"timezone"`
}

// Location resolves the storage timezone.
func (d DatabaseConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("database.timezone: %w", err)
	}
	return loc, nil
}

// WeatherConfig captures Open-Meteo connectivity.
type WeatherConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timezone          string        `mapstructure:"timezone"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`
	DefaultLocation   string        `mapstructure:"default_location"`
	LookbackDays      int           `mapstructure:"lookback_days"`
}

// SimulationConfig seeds the demand simulator.
type SimulationConfig struct {
	Seed uint64 `mapstructure:"seed"`
}

// SchedulerConfig governs pipeline cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Locations       []string      `mapstructure:"locations"`
}

// AlertingConfig defines quality alert routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	MinStatus string         `mapstructure:"min_status"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// ServerConfig configures the health and metrics listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load builds configuration from file, environment, and defaults. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("ENERGYPULSE")
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

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
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
	v.SetDefault("app.name", "energypulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.application_name", "energypulse")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.read_limit", 10000)
	v.SetDefault("database.timezone", "America/New_York")

	v.SetDefault("weather.base_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.timezone", "America/New_York")
	v.SetDefault("weather.request_timeout", "30s")
	v.SetDefault("weather.requests_per_second", 5.0)
	v.SetDefault("weather.user_agent", "energypulse/1.0")
	v.SetDefault("weather.default_location", "new_york")
	v.SetDefault("weather.lookback_days", 7)

	v.SetDefault("simulation.seed", 42)

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x656e7267))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.locations", []string{"new_york"})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_status", "fail")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("server.listen_addr", ":9102")
	v.SetDefault("server.shutdown_timeout", "5s")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Database.ReadLimit <= 0 {
		return fmt.Errorf("database.read_limit must be greater than zero")
	}
	if len(c.Scheduler.Locations) == 0 {
		return fmt.Errorf("scheduler.locations must not be empty")
	}
	if c.Weather.LookbackDays <= 0 {
		return fmt.Errorf("weather.lookback_days must be greater than zero")
	}
	if c.Weather.RequestsPerSecond < 0 {
		return fmt.Errorf("weather.requests_per_second cannot be negative")
	}
	if _, err := time.LoadLocation(c.Weather.Timezone); err != nil {
		return fmt.Errorf("weather.timezone: %w", err)
	}
	if _, err := c.Database.Location(); err != nil {
		return err
	}
	if _, err := model.ParseQualityStatus(c.Alerting.MinStatus); err != nil {
		return fmt.Errorf("alerting.min_status: %w", err)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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

// AlertThreshold returns the least severe status that triggers a notification.
func (c *Config) AlertThreshold() model.QualityStatus {
	status, err := model.ParseQualityStatus(c.Alerting.MinStatus)
	if err != nil {
		return model.StatusFail
	}
	return status
}
