// Package config loads and validates headhunter configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clanforge/headhunter/internal/recruit"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	API        APIConfig        `mapstructure:"api"`
	Headhunter HeadhunterConfig `mapstructure:"headhunter"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// APIConfig points at the upstream game-stats API.
type APIConfig struct {
	BaseURL string           `mapstructure:"base_url"`
	Keys    []recruit.APIKey `mapstructure:"keys"`
}

// HeadhunterConfig governs pool sizing, scoring and candidate filtering.
type HeadhunterConfig struct {
	ClanTag           string   `mapstructure:"clan_tag"`
	PoolTarget        int      `mapstructure:"pool_target"`
	Keywords          []string `mapstructure:"keywords"`
	TrophyFloor       int      `mapstructure:"trophy_floor"`
	FillingRatio      float64  `mapstructure:"filling_ratio"`
	BlacklistDays     int      `mapstructure:"blacklist_days"`
	TrophyWeight      float64  `mapstructure:"trophy_weight"`
	DonationWeight    float64  `mapstructure:"donation_weight"`
	WarWeight         float64  `mapstructure:"war_weight"`
	WarBonus          int      `mapstructure:"war_bonus"`
	IntervalMinutes   int      `mapstructure:"interval_minutes"`
	TimeBudgetSeconds int      `mapstructure:"time_budget_seconds"`
}

// HTTPConfig configures the upstream HTTP client.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// ScanConfig bounds a single discovery run.
type ScanConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	MaxFetches        int `mapstructure:"max_fetches"`
	InterChunkDelayMs int `mapstructure:"inter_chunk_delay_ms"`
	LotteryWindow     int `mapstructure:"lottery_window"`
	SampleSize        int `mapstructure:"sample_size"`
	MinMembers        int `mapstructure:"min_members"`
	ProfileCap        int `mapstructure:"profile_cap"`
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Callers run Validate
// separately once every override is applied.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HEADHUNTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.base_url", "https://api.clashroyale.com/v1")
	v.SetDefault("headhunter.pool_target", 50)
	v.SetDefault("headhunter.keywords", []string{"clash", "royale", "war", "open", "free"})
	v.SetDefault("headhunter.trophy_floor", 4000)
	v.SetDefault("headhunter.filling_ratio", 0.75)
	v.SetDefault("headhunter.blacklist_days", 7)
	v.SetDefault("headhunter.trophy_weight", 1.0)
	v.SetDefault("headhunter.donation_weight", 0.5)
	v.SetDefault("headhunter.war_weight", 20.0)
	v.SetDefault("headhunter.war_bonus", 500)
	v.SetDefault("headhunter.interval_minutes", 30)
	v.SetDefault("headhunter.time_budget_seconds", 240)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.user_agent", "headhunterd/1.0")
	v.SetDefault("scan.batch_size", 10)
	v.SetDefault("scan.max_fetches", 400)
	v.SetDefault("scan.inter_chunk_delay_ms", 200)
	v.SetDefault("scan.lottery_window", 200)
	v.SetDefault("scan.sample_size", 75)
	v.SetDefault("scan.min_members", 10)
	v.SetDefault("scan.profile_cap", 50)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if len(c.API.Keys) == 0 {
		return fmt.Errorf("api.keys must list at least one credential")
	}
	for i, k := range c.API.Keys {
		if k.Value == "" {
			return fmt.Errorf("api.keys[%d] has an empty value", i)
		}
	}
	if c.Headhunter.PoolTarget <= 0 {
		return fmt.Errorf("headhunter.pool_target must be > 0")
	}
	if c.Headhunter.FillingRatio <= 0 || c.Headhunter.FillingRatio > 1 {
		return fmt.Errorf("headhunter.filling_ratio must be in (0, 1]")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// ScanInterval returns the pause between scheduled scout runs.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Headhunter.IntervalMinutes) * time.Minute
}

// TimeBudget returns the wall-clock budget for one scout run.
func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.Headhunter.TimeBudgetSeconds) * time.Second
}
