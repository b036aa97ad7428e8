package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"autosniper/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Data      DataConfig      `mapstructure:"data"`
	Listings  ListingsConfig  `mapstructure:"listings"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Valuation ValuationConfig `mapstructure:"valuation"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DataConfig locates the CSV inputs and the optional remote bundle.
type DataConfig struct {
	Dir          string        `mapstructure:"dir"`
	SoldFile     string        `mapstructure:"sold_file"`
	ArchiveDir   string        `mapstructure:"archive_dir"`
	ActiveFiles  []string      `mapstructure:"active_files"`
	OutcomesFile string        `mapstructure:"outcomes_file"`
	VerdictsFile string        `mapstructure:"verdicts_file"`
	RemoteURL    string        `mapstructure:"remote_url"`
	RemoteToken  string        `mapstructure:"remote_token"`
	CacheMinutes int           `mapstructure:"cache_minutes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Path resolves name against Dir unless it is absolute.
func (d DataConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// ListingsConfig bounds which active listings are evaluated.
type ListingsConfig struct {
	MinHours float64 `mapstructure:"min_hours"`
	MaxHours float64 `mapstructure:"max_hours"`
}

// MatchingConfig tunes comparable selection.
type MatchingConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	FallbackLimit       int     `mapstructure:"fallback_limit"`
	CloseLimit          int     `mapstructure:"close_limit"`
	CloseFallbackLimit  int     `mapstructure:"close_fallback_limit"`
	MaxOdometerDiff     float64 `mapstructure:"max_odometer_diff"`
}

// ValuationConfig holds the bid discipline constants.
type ValuationConfig struct {
	CostBuffer            float64       `mapstructure:"cost_buffer"`
	BidHeadroom           float64       `mapstructure:"bid_headroom"`
	MinOdometerFactor     float64       `mapstructure:"min_odometer_factor"`
	MaxOdometerFactor     float64       `mapstructure:"max_odometer_factor"`
	OdometerNoteTolerance float64       `mapstructure:"odometer_note_tolerance"`
	ScoreMarginDivisor    float64       `mapstructure:"score_margin_divisor"`
	RefreshAfter          time.Duration `mapstructure:"refresh_after"`
}

// PricingConfig selects the language model behind the estimate.
type PricingConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StorageConfig picks the valuation cache backend.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig covers the shared cache.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// SchedulerConfig governs re-valuation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	MinScore float64        `mapstructure:"min_score"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for alerts.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ScoringConfig controls outcome reports.
type ScoringConfig struct {
	WorstMissLimit int    `mapstructure:"worst_miss_limit"`
	OutputDir      string `mapstructure:"output_dir"`
}

// ExportConfig sets CLI listing behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from dotenv files, the config file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotenv(".env.local", ".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("AUTOSNIPER")
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
	cfg.applyProviderKey()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotenv populates the environment from the first files found. Existing variables win.
func loadDotenv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
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
	v.SetDefault("app.name", "autosniper")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("data.dir", "CSV_data")
	v.SetDefault("data.sold_file", "sold_cars.csv")
	v.SetDefault("data.archive_dir", "ai_analysis_ready")
	v.SetDefault("data.active_files", []string{"vehicle_static_details.csv", "active_vehicle_details.csv"})
	v.SetDefault("data.outcomes_file", "listing_outcomes.csv")
	v.SetDefault("data.verdicts_file", "ai_verdicts.csv")
	v.SetDefault("data.remote_url", "")
	v.SetDefault("data.remote_token", "")
	v.SetDefault("data.cache_minutes", 30)
	v.SetDefault("data.timeout", "60s")

	v.SetDefault("listings.min_hours", 0.0)
	v.SetDefault("listings.max_hours", 24.0)

	v.SetDefault("matching.similarity_threshold", 0.5)
	v.SetDefault("matching.fallback_limit", 5)
	v.SetDefault("matching.close_limit", 5)
	v.SetDefault("matching.close_fallback_limit", 2)
	v.SetDefault("matching.max_odometer_diff", 20000.0)

	v.SetDefault("valuation.cost_buffer", 1500.0)
	v.SetDefault("valuation.bid_headroom", 3500.0)
	v.SetDefault("valuation.min_odometer_factor", 0.25)
	v.SetDefault("valuation.max_odometer_factor", 1.2)
	v.SetDefault("valuation.odometer_note_tolerance", 0.05)
	v.SetDefault("valuation.score_margin_divisor", 5.0)
	v.SetDefault("valuation.refresh_after", "12h")

	v.SetDefault("pricing.provider", "openai")
	v.SetDefault("pricing.api_key", "")
	v.SetDefault("pricing.base_url", "")
	v.SetDefault("pricing.model", "")
	v.SetDefault("pricing.temperature", 0.3)
	v.SetDefault("pricing.max_tokens", 1024)
	v.SetDefault("pricing.timeout", "60s")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "autosniper.db")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "autosniper:valuation:")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x61736e70))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_score", 8.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("scoring.worst_miss_limit", 10)
	v.SetDefault("scoring.output_dir", "")

	v.SetDefault("export.max_rows", 50)
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

// applyProviderKey falls back to the provider's conventional environment variable.
func (c *Config) applyProviderKey() {
	if c.Pricing.APIKey != "" {
		return
	}
	switch strings.ToLower(c.Pricing.Provider) {
	case "openai":
		c.Pricing.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		c.Pricing.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Listings.MinHours < 0 {
		return fmt.Errorf("listings.min_hours cannot be negative")
	}
	if c.Listings.MaxHours > 0 && c.Listings.MaxHours <= c.Listings.MinHours {
		return fmt.Errorf("listings.max_hours must exceed listings.min_hours")
	}
	if c.Matching.SimilarityThreshold < 0 || c.Matching.SimilarityThreshold > 1 {
		return fmt.Errorf("matching.similarity_threshold must be within [0,1]")
	}
	if c.Matching.MaxOdometerDiff <= 0 {
		return fmt.Errorf("matching.max_odometer_diff must be greater than zero")
	}
	if c.Valuation.CostBuffer < 0 || c.Valuation.BidHeadroom < 0 {
		return fmt.Errorf("valuation.cost_buffer and valuation.bid_headroom cannot be negative")
	}
	if c.Valuation.MinOdometerFactor <= 0 || c.Valuation.MaxOdometerFactor < c.Valuation.MinOdometerFactor {
		return fmt.Errorf("valuation odometer factor bounds are invalid")
	}
	if c.Valuation.ScoreMarginDivisor <= 0 {
		return fmt.Errorf("valuation.score_margin_divisor must be greater than zero")
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if strings.EqualFold(c.Storage.Driver, "postgres") && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres storage driver")
	}
	if c.Alerting.MinScore < 0 || c.Alerting.MinScore > 10 {
		return fmt.Errorf("alerting.min_score must be within [0,10]")
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

// ResolveLimit returns either the CLI override or the configured default.
func (c *Config) ResolveLimit(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
