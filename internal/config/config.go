package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/proxyops/proxy-pool/internal/application"
	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and bare integers (seconds).
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := unmarshal(&seconds); err != nil {
		return err
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full daemon configuration, loaded from YAML with
// environment overrides.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Selection   SelectionConfig   `yaml:"selection"`
	Pool        PoolConfig        `yaml:"pool"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Address returns the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// HealthCheckConfig configures probes and scheduling.
type HealthCheckConfig struct {
	Timeout          Duration `yaml:"timeout"`
	TestURL          string   `yaml:"test_url"`
	GeoURL           string   `yaml:"geo_url"`
	AnonymityCheck   bool     `yaml:"anonymity_check"`
	GeoVerification  bool     `yaml:"geo_verification"`
	Interval         Duration `yaml:"interval"`
	RecoveryInterval Duration `yaml:"recovery_interval"`
	BatchConcurrency int      `yaml:"batch_concurrency"`
	BatchLimit       int      `yaml:"batch_limit"`
	ClientIP         string   `yaml:"client_ip"`
}

// SelectionConfig configures the default selection policy.
type SelectionConfig struct {
	Strategy        string               `yaml:"strategy"`
	Fallback        string               `yaml:"fallback"`
	GeoPreference   []string             `yaml:"geo_preference"`
	WeightFactors   domain.WeightFactors `yaml:"weight_factors"`
	MinSuccessRate  float64              `yaml:"min_success_rate"`
	MaxResponseTime Duration             `yaml:"max_response_time"`
}

// PoolConfig configures pool housekeeping.
type PoolConfig struct {
	CleanupSuccessRate float64  `yaml:"cleanup_success_rate"`
	CleanupInactiveFor Duration `yaml:"cleanup_inactive_for"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HealthCheck: HealthCheckConfig{
			Timeout:          Duration(10 * time.Second),
			TestURL:          "https://httpbin.org/ip",
			GeoURL:           "https://httpbin.org/ip",
			AnonymityCheck:   true,
			GeoVerification:  false,
			Interval:         Duration(5 * time.Minute),
			RecoveryInterval: Duration(10 * time.Minute),
			BatchConcurrency: 10,
			BatchLimit:       200,
		},
		Selection: SelectionConfig{
			Strategy:      string(domain.StrategyBest),
			Fallback:      string(domain.StrategyRoundRobin),
			WeightFactors: domain.DefaultWeightFactors(),
		},
		Pool: PoolConfig{
			CleanupSuccessRate: 0.1,
			CleanupInactiveFor: Duration(24 * time.Hour),
		},
	}
}

// Load reads the configuration from path (optional), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, apperrors.WrapError(err, apperrors.ErrCodeInvalidProxyConfig,
				"config", "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, apperrors.WrapError(err, apperrors.ErrCodeInvalidProxyConfig,
				"config", "failed to parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides folds PP_* environment variables over the file values.
func (c *Config) applyEnvOverrides() {
	overrideString("PP_SERVER_HOST", &c.Server.Host)
	overrideInt("PP_SERVER_PORT", &c.Server.Port)
	overrideString("PP_LOG_LEVEL", &c.Logging.Level)
	overrideString("PP_LOG_FORMAT", &c.Logging.Format)
	overrideString("PP_LOG_OUTPUT", &c.Logging.Output)
	overrideString("PP_LOG_FILE", &c.Logging.File)
	overrideString("PP_CHECK_TEST_URL", &c.HealthCheck.TestURL)
	overrideString("PP_CHECK_GEO_URL", &c.HealthCheck.GeoURL)
	overrideString("PP_CHECK_CLIENT_IP", &c.HealthCheck.ClientIP)
	overrideDuration("PP_CHECK_TIMEOUT", &c.HealthCheck.Timeout)
	overrideDuration("PP_CHECK_INTERVAL", &c.HealthCheck.Interval)
	overrideDuration("PP_RECOVERY_INTERVAL", &c.HealthCheck.RecoveryInterval)
	overrideInt("PP_CHECK_CONCURRENCY", &c.HealthCheck.BatchConcurrency)
	overrideString("PP_SELECTION_STRATEGY", &c.Selection.Strategy)
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return apperrors.NewInvalidConfigError(
			fmt.Sprintf("server port must be 1-65535, got %d", c.Server.Port))
	}
	if !domain.StrategyType(c.Selection.Strategy).Valid() {
		return apperrors.NewInvalidConfigError(
			fmt.Sprintf("unknown selection strategy %q", c.Selection.Strategy))
	}
	if c.Selection.Fallback != "" && !domain.StrategyType(c.Selection.Fallback).Valid() {
		return apperrors.NewInvalidConfigError(
			fmt.Sprintf("unknown fallback strategy %q", c.Selection.Fallback))
	}
	if err := c.Selection.WeightFactors.Validate(); err != nil {
		return err
	}
	if c.HealthCheck.Timeout.Std() <= 0 {
		return apperrors.NewInvalidConfigError("health check timeout must be positive")
	}
	if c.HealthCheck.BatchConcurrency < 1 {
		return apperrors.NewInvalidConfigError("batch concurrency must be at least 1")
	}
	return nil
}

// LoggerConfig converts to the logger package configuration.
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
		File:   c.Logging.File,
	}
}

// DomainHealthCheckConfig converts to the domain probe configuration.
func (c Config) DomainHealthCheckConfig() domain.HealthCheckConfig {
	return domain.HealthCheckConfig{
		Timeout:         c.HealthCheck.Timeout.Std(),
		TestURL:         c.HealthCheck.TestURL,
		GeoURL:          c.HealthCheck.GeoURL,
		AnonymityCheck:  c.HealthCheck.AnonymityCheck,
		GeoVerification: c.HealthCheck.GeoVerification,
		MaxConcurrent:   c.HealthCheck.BatchConcurrency,
		Interval:        c.HealthCheck.Interval.Std(),
	}
}

// SelectionStrategy converts to the domain selection policy.
func (c Config) SelectionStrategy() domain.SelectionStrategy {
	strategy := domain.SelectionStrategy{
		Type:          domain.StrategyType(c.Selection.Strategy),
		FallbackType:  domain.StrategyType(c.Selection.Fallback),
		GeoPreference: c.Selection.GeoPreference,
		WeightFactors: c.Selection.WeightFactors,
	}
	if c.Selection.MinSuccessRate > 0 || c.Selection.MaxResponseTime.Std() > 0 {
		strategy.PerformanceThreshold = &domain.PerformanceThreshold{
			MinSuccessRate:  c.Selection.MinSuccessRate,
			MaxResponseTime: c.Selection.MaxResponseTime.Std(),
		}
	}
	return strategy
}

// ApplicationPoolConfig converts to the application service configuration.
func (c Config) ApplicationPoolConfig() application.PoolConfig {
	return application.PoolConfig{
		CheckConfig:      c.DomainHealthCheckConfig(),
		CheckInterval:    c.HealthCheck.Interval.Std(),
		RecoveryInterval: c.HealthCheck.RecoveryInterval.Std(),
		BatchConcurrency: c.HealthCheck.BatchConcurrency,
		BatchLimit:       c.HealthCheck.BatchLimit,
	}
}

func overrideString(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func overrideInt(key string, target *int) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideDuration(key string, target *Duration) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = Duration(parsed)
		}
	}
}
