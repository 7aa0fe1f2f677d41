// Package config loads gateway configuration from defaults, an optional
// YAML file, and PAGEGATE_-prefixed environment variables, with hot
// reload of the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full gateway configuration.
type Config struct {
	// Host is the address to bind to.
	Host string `mapstructure:"host"`
	// Port is the port to listen on.
	Port string `mapstructure:"port"`

	// ExecutorURL is the inference backend address.
	ExecutorURL string `mapstructure:"executor_url"`
	// MaxConcurrentRequests is the admission budget C.
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
	// InferenceTimeoutSeconds bounds one backend call.
	InferenceTimeoutSeconds int `mapstructure:"inference_timeout_seconds"`
	// HealthCheckTimeoutSeconds bounds one readiness probe.
	HealthCheckTimeoutSeconds int `mapstructure:"health_check_timeout_seconds"`

	// Operations are the backend operations exposed as POST endpoints.
	Operations []string `mapstructure:"operations"`
	// RequiredModels are the models readiness insists on. Defaults to
	// Operations when empty.
	RequiredModels []string `mapstructure:"required_models"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// FilterHealthAccessLog drops health-check lines from access logs.
	FilterHealthAccessLog bool `mapstructure:"filter_health_access_log"`
}

// InferenceTimeout returns the backend call deadline as a Duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}

// HealthCheckTimeout returns the probe deadline as a Duration.
func (c *Config) HealthCheckTimeout() time.Duration {
	return time.Duration(c.HealthCheckTimeoutSeconds) * time.Second
}

// Models returns the readiness model set, falling back to Operations.
func (c *Config) Models() []string {
	if len(c.RequiredModels) > 0 {
		return c.RequiredModels
	}
	return c.Operations
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.ExecutorURL == "" {
		return errors.New("executor_url must be set")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("max_concurrent_requests = %d, must be positive", c.MaxConcurrentRequests)
	}
	if c.InferenceTimeoutSeconds <= 0 {
		return fmt.Errorf("inference_timeout_seconds = %d, must be positive", c.InferenceTimeoutSeconds)
	}
	if len(c.Operations) == 0 {
		return errors.New("operations must list at least one backend operation")
	}
	return nil
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("executor_url", defaults.ExecutorURL)
	v.SetDefault("max_concurrent_requests", defaults.MaxConcurrentRequests)
	v.SetDefault("inference_timeout_seconds", defaults.InferenceTimeoutSeconds)
	v.SetDefault("health_check_timeout_seconds", defaults.HealthCheckTimeoutSeconds)
	v.SetDefault("operations", defaults.Operations)
	v.SetDefault("required_models", defaults.RequiredModels)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("filter_health_access_log", defaults.FilterHealthAccessLog)

	// Environment variables with PAGEGATE_ prefix
	v.SetEnvPrefix("PAGEGATE")
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pagegate")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cm.v = v
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Reloads that fail
// validation keep the previous configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil || cfg.Validate() != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}
