package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDSNEnv, redisURLEnv, pollutionBaseURLEnv, pollutionUsernameEnv,
		pollutionPasswordEnv, pollutionCacheTTLEnv, wikipediaBaseURLEnv, logLevelEnv, logFormatEnv,
		httpAddrEnv, frontendURLEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, 45*time.Minute, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.EnrichmentInterval)
	assert.Equal(t, time.Minute, cfg.PollutionAPI.CacheTTL)
	assert.Equal(t, 50, cfg.PollutionAPI.PageLimit)
	assert.Equal(t, 5, cfg.Enrichment.BatchSize)
	assert.Equal(t, 200, cfg.Enrichment.CandidateLimit)
	assert.Equal(t, 2*time.Second, cfg.Enrichment.BatchPause)
	assert.Equal(t, defaultRedisKeyPrefix, cfg.Redis.KeyPrefix)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestLoadMergesYAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: postgres://sync@db:5432/pollution
  autoMigrate: true
pollutionApi:
  baseUrl: https://pollution.example.org
  cacheTtl: 90s
scheduler:
  ingestionInterval: 30m
  timezone: Europe/Warsaw
http:
  allowedOrigins: [https://app.example.org]
`), 0o600))
	t.Setenv(configPathEnv, path)

	cfg := Load()

	assert.Equal(t, "postgres://sync@db:5432/pollution", cfg.Database.DSN)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "https://pollution.example.org", cfg.PollutionAPI.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.PollutionAPI.CacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.EnrichmentInterval, "unset values keep defaults")
	assert.Equal(t, "Europe/Warsaw", cfg.Scheduler.Location().String())
	assert.Equal(t, []string{"https://app.example.org"}, cfg.HTTP.AllowedOrigins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pollutionApi:\n  baseUrl: https://from-file\n"), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv(pollutionBaseURLEnv, "https://from-env")
	t.Setenv(pollutionUsernameEnv, "svc")
	t.Setenv(pollutionPasswordEnv, "s3cret")
	t.Setenv(pollutionCacheTTLEnv, "120000")
	t.Setenv(frontendURLEnv, "https://front.example.org")
	t.Setenv(logFormatEnv, "json")

	cfg := Load()

	assert.Equal(t, "https://from-env", cfg.PollutionAPI.BaseURL)
	assert.Equal(t, "svc", cfg.PollutionAPI.Username)
	assert.Equal(t, "s3cret", cfg.PollutionAPI.Password)
	assert.Equal(t, 2*time.Minute, cfg.PollutionAPI.CacheTTL)
	assert.Equal(t, []string{"https://front.example.org"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadIgnoresInvalidCacheTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv(pollutionCacheTTLEnv, "soon")

	assert.Equal(t, time.Minute, Load().PollutionAPI.CacheTTL)
}

func TestLoadFallsBackOnBrokenFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o600))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	assert.Equal(t, defaultConfig().Database.DSN, cfg.Database.DSN)
}

func TestLoadUnknownTimezone(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  timezone: Mars/Olympus\n"), 0o600))
	t.Setenv(configPathEnv, path)

	assert.Equal(t, "UTC", Load().Scheduler.Location().String())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url")
	assert.Contains(t, err.Error(), "credentials")

	cfg.PollutionAPI.BaseURL = "https://pollution.example.org"
	cfg.PollutionAPI.Username = "svc"
	cfg.PollutionAPI.Password = "pw"
	assert.NoError(t, cfg.Validate())
}
