package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyops/proxy-pool/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5*time.Minute, cfg.HealthCheck.Interval.Std())
	assert.Equal(t, string(domain.StrategyBest), cfg.Selection.Strategy)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
logging:
  level: debug
  format: text
health_check:
  timeout: 5s
  interval: 2m
  test_url: https://judge.example.com/ip
selection:
  strategy: round_robin
  geo_preference: [JP, DE]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.HealthCheck.Timeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.HealthCheck.Interval.Std())
	assert.Equal(t, "https://judge.example.com/ip", cfg.HealthCheck.TestURL)
	assert.Equal(t, "round_robin", cfg.Selection.Strategy)
	assert.Equal(t, []string{"JP", "DE"}, cfg.Selection.GeoPreference)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.HealthCheck.BatchConcurrency)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
selection:
  strategy: coin_flip
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
server:
  port: 99999
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PP_SERVER_PORT", "7070")
	t.Setenv("PP_LOG_LEVEL", "warn")
	t.Setenv("PP_CHECK_INTERVAL", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 90*time.Second, cfg.HealthCheck.Interval.Std())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Selection.MinSuccessRate = 0.7

	domainCheck := cfg.DomainHealthCheckConfig()
	assert.Equal(t, cfg.HealthCheck.TestURL, domainCheck.TestURL)
	assert.Equal(t, cfg.HealthCheck.Timeout.Std(), domainCheck.Timeout)

	strategy := cfg.SelectionStrategy()
	assert.Equal(t, domain.StrategyBest, strategy.Type)
	assert.Equal(t, domain.StrategyRoundRobin, strategy.FallbackType)
	require.NotNil(t, strategy.PerformanceThreshold)
	assert.Equal(t, 0.7, strategy.PerformanceThreshold.MinSuccessRate)

	poolCfg := cfg.ApplicationPoolConfig()
	assert.Equal(t, cfg.HealthCheck.BatchLimit, poolCfg.BatchLimit)
	assert.Equal(t, cfg.HealthCheck.RecoveryInterval.Std(), poolCfg.RecoveryInterval)
}
