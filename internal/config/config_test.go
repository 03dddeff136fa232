package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://www.hltv.org", cfg.Site.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Retry.EmergencySleep)
	assert.Zero(t, cfg.Retry.RunBudget)
	assert.Equal(t, 100*time.Millisecond, cfg.Politeness.ListingDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Politeness.MatchDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Politeness.DownloadDelay)
	assert.False(t, cfg.Politeness.Disabled)
	assert.Equal(t, 50, cfg.Extractor.PageSize)
	assert.Equal(t, "9z", cfg.Extractor.TeamPlaceholder)
	assert.Equal(t, 32*1024, cfg.Download.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Empty(t, cfg.DB.DSN)
	assert.Empty(t, cfg.Metrics.ListenAddr)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
site:
  base_url: http://127.0.0.1:8080
  user_agent: test-agent
http:
  timeout_seconds: 10
  rate_limit_rps: 2.5
  rate_limit_burst: 3
retry:
  max_attempts: 5
  emergency_sleep: 2s
  run_budget: 10m
politeness:
  disabled: true
  listing_delay: 0s
  match_delay: 1s
  download_delay: 250ms
extractor:
  page_size: 25
  team_placeholder: tbd
download:
  workers: 6
  chunk_size: 1024
storage:
  gcs_bucket: replays
db:
  dsn: postgres://localhost/demos
pubsub:
  project_id: proj
  topic_name: replays
metrics:
  listen_addr: ":9102"
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.Site.BaseURL)
	assert.Equal(t, "test-agent", cfg.Site.UserAgent)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimitRPS, 1e-9)
	assert.Equal(t, 3, cfg.HTTP.RateLimitBurst)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.EmergencySleep)
	assert.Equal(t, 10*time.Minute, cfg.Retry.RunBudget)
	assert.True(t, cfg.Politeness.Disabled)
	assert.Zero(t, cfg.Politeness.ListingDelay)
	assert.Equal(t, time.Second, cfg.Politeness.MatchDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Politeness.DownloadDelay)
	assert.Equal(t, 25, cfg.Extractor.PageSize)
	assert.Equal(t, "tbd", cfg.Extractor.TeamPlaceholder)
	assert.Equal(t, 6, cfg.Download.Workers)
	assert.Equal(t, "replays", cfg.Storage.GCSBucket)
	assert.Equal(t, "postgres://localhost/demos", cfg.DB.DSN)
	assert.Equal(t, "replays", cfg.PubSub.TopicName)
	assert.Equal(t, ":9102", cfg.Metrics.ListenAddr)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverridesAndDotEnv(t *testing.T) {
	t.Setenv("DEMOSCRAPER_RETRY_EMERGENCY_SLEEP", "5s")

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"DEMOSCRAPER_RETRY_EMERGENCY_SLEEP=9s\nDEMOSCRAPER_EXTRACTOR_TEAM_PLACEHOLDER=tba\n",
	), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DEMOSCRAPER_EXTRACTOR_TEAM_PLACEHOLDER") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Retry.EmergencySleep, "process env wins over dotenv")
	assert.Equal(t, "tba", cfg.Extractor.TeamPlaceholder)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"relative base url": func(c *Config) { c.Site.BaseURL = "/relative" },
		"zero timeout":      func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
		"negative rps":      func(c *Config) { c.HTTP.RateLimitRPS = -1 },
		"rps without burst": func(c *Config) { c.HTTP.RateLimitRPS = 1; c.HTTP.RateLimitBurst = 0 },
		"zero attempts":     func(c *Config) { c.Retry.MaxAttempts = 0 },
		"negative sleep":    func(c *Config) { c.Retry.EmergencySleep = -time.Second },
		"negative delay":    func(c *Config) { c.Politeness.MatchDelay = -time.Second },
		"zero page size":    func(c *Config) { c.Extractor.PageSize = 0 },
		"negative workers":  func(c *Config) { c.Download.Workers = -1 },
		"zero chunk":        func(c *Config) { c.Download.ChunkSize = 0 },
		"unknown log level": func(c *Config) { c.Logging.Level = "chatty" },
		"topic without project": func(c *Config) {
			c.PubSub.TopicName = "replays"
			c.PubSub.ProjectID = ""
		},
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
