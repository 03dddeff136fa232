// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override, e.g.
// DEMOSCRAPER_RETRY_EMERGENCY_SLEEP=30s.
const EnvPrefix = "DEMOSCRAPER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Download   DownloadConfig   `mapstructure:"download"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig identifies the scraped site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures the HTTP client and the per-host token bucket.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// RateLimitRPS of zero disables the token bucket.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// RetryConfig controls the blocked-request policy.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	EmergencySleep time.Duration `mapstructure:"emergency_sleep"`
	// RunBudget caps the total emergency sleep of one run; zero is unlimited.
	RunBudget time.Duration `mapstructure:"run_budget"`
}

// PolitenessConfig holds the fixed delays between requests. A zero delay
// falls back to the component default; Disabled turns every delay off.
type PolitenessConfig struct {
	Disabled      bool          `mapstructure:"disabled"`
	ListingDelay  time.Duration `mapstructure:"listing_delay"`
	MatchDelay    time.Duration `mapstructure:"match_delay"`
	DownloadDelay time.Duration `mapstructure:"download_delay"`
}

// ExtractorConfig tunes archive parsing.
type ExtractorConfig struct {
	PageSize        int    `mapstructure:"page_size"`
	TeamPlaceholder string `mapstructure:"team_placeholder"`
}

// DownloadConfig tunes replay downloads.
type DownloadConfig struct {
	// Workers of zero means NumCPU-1.
	Workers   int `mapstructure:"workers"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// StorageConfig sets the optional replay mirror.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to Postgres. An empty DSN disables persistence.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for replay notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features. Level overrides the
// default level of the chosen mode when set.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file, dotenv files and the
// environment. With no envFiles given, ./.env is read when present. Values
// already in the environment win over dotenv values.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.hltv.org")
	v.SetDefault("site.user_agent", "Mozilla/5.0 (compatible; hltv-demo-scraper/1.0)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.rate_limit_rps", 0.0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.emergency_sleep", "60s")
	v.SetDefault("retry.run_budget", "0s")
	v.SetDefault("politeness.disabled", false)
	v.SetDefault("politeness.listing_delay", "100ms")
	v.SetDefault("politeness.match_delay", "500ms")
	v.SetDefault("politeness.download_delay", "500ms")
	v.SetDefault("extractor.page_size", 50)
	v.SetDefault("extractor.team_placeholder", "9z")
	v.SetDefault("download.workers", 0)
	v.SetDefault("download.chunk_size", 32*1024)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "demofiles")
	v.SetDefault("storage.content_type", "application/vnd.rar")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL, got %q", c.Site.BaseURL)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return errors.New("http.rate_limit_rps must be >= 0")
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateLimitBurst <= 0 {
		return errors.New("http.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be > 0")
	}
	if c.Retry.EmergencySleep < 0 || c.Retry.RunBudget < 0 {
		return errors.New("retry durations must be >= 0")
	}
	if c.Politeness.ListingDelay < 0 || c.Politeness.MatchDelay < 0 || c.Politeness.DownloadDelay < 0 {
		return errors.New("politeness delays must be >= 0")
	}
	if c.Extractor.PageSize <= 0 {
		return errors.New("extractor.page_size must be > 0")
	}
	if c.Download.Workers < 0 {
		return errors.New("download.workers must be >= 0")
	}
	if c.Download.ChunkSize <= 0 {
		return errors.New("download.chunk_size must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
