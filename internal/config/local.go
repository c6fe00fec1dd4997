package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

// Cache backends
const (
	CacheBackendJSON   = "json"
	CacheBackendSQLite = "sqlite"
)

// Attempt log modes
const (
	AttemptLogDirect = "direct"
	AttemptLogQueue  = "queue"
)

// LocalConfig holds configuration for the daemon, CLI and worker
type LocalConfig struct {
	Daemon      DaemonConfig      `yaml:"daemon"`
	User        UserConfig        `yaml:"user"`
	Progression ProgressionConfig `yaml:"progression"`
	Cache       CacheConfig       `yaml:"cache"`
	Remote      RemoteConfig      `yaml:"remote"`
	Queue       QueueConfig       `yaml:"queue"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`

	// WritesPerMinute limits progress writes per student; 0 disables
	WritesPerMinute int `yaml:"writes_per_minute"`
}

// UserConfig identifies the student signed in on this device
type UserConfig struct {
	ID string `yaml:"id,omitempty"`
}

// ProgressionConfig holds the level layout
type ProgressionConfig struct {
	StagesPerLevel       []int `yaml:"stages_per_level"`
	RemoteTimeoutSeconds int   `yaml:"remote_timeout_seconds"`
}

// CacheConfig selects the local cache backend
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"` // default: ~/.fracquest/cache
}

// RemoteConfig holds the remote progress store settings
type RemoteConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url,omitempty"`
	AttemptLog  string `yaml:"attempt_log"`
}

// QueueConfig holds RabbitMQ settings for the queued attempt log
type QueueConfig struct {
	URL     string `yaml:"url,omitempty"`
	Workers int    `yaml:"workers"`
}

// ResilienceConfig tunes retries and the circuit breaker on remote calls
type ResilienceConfig struct {
	RetryAttempts    int `yaml:"retry_attempts"`
	BreakerThreshold int `yaml:"breaker_threshold"`

	// MaxConcurrent caps in-flight remote calls; 0 disables the bulkhead
	MaxConcurrent int `yaml:"max_concurrent"`
}

// SecretsConfig holds connection strings loaded from secrets.yaml
type SecretsConfig struct {
	DatabaseURL string `yaml:"database_url,omitempty"`
	QueueURL    string `yaml:"queue_url,omitempty"`
}

// FracquestDir returns the path to ~/.fracquest
func FracquestDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".fracquest"), nil
}

// EnsureFracquestDir creates ~/.fracquest and subdirectories if they don't exist
func EnsureFracquestDir() (string, error) {
	dir, err := FracquestDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "cache"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",

			WritesPerMinute: 120,
		},
		Progression: ProgressionConfig{
			StagesPerLevel:       append([]int(nil), domain.DefaultStagesPerLevel...),
			RemoteTimeoutSeconds: 15,
		},
		Cache: CacheConfig{
			Backend: CacheBackendJSON,
		},
		Remote: RemoteConfig{
			Enabled:    false,
			AttemptLog: AttemptLogDirect,
		},
		Queue: QueueConfig{
			Workers: 3,
		},
		Resilience: ResilienceConfig{
			RetryAttempts:    3,
			BreakerThreshold: 5,
			MaxConcurrent:    8,
		},
	}
}

// Validate checks the settings that cannot be defaulted
func (c *LocalConfig) Validate() error {
	var errs []error

	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port out of range: %d", c.Daemon.Port))
	}
	if c.Resilience.MaxConcurrent < 0 {
		errs = append(errs, errors.New("resilience.max_concurrent must not be negative"))
	}
	if c.Daemon.WritesPerMinute < 0 {
		errs = append(errs, errors.New("daemon.writes_per_minute must not be negative"))
	}
	if _, err := c.Layout(); err != nil {
		errs = append(errs, fmt.Errorf("progression.stages_per_level: %w", err))
	}
	if c.Progression.RemoteTimeoutSeconds < 1 {
		errs = append(errs, errors.New("progression.remote_timeout_seconds must be positive"))
	}

	switch c.Cache.Backend {
	case CacheBackendJSON, CacheBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q",
			CacheBackendJSON, CacheBackendSQLite, c.Cache.Backend))
	}

	switch c.Remote.AttemptLog {
	case AttemptLogDirect:
	case AttemptLogQueue:
		if c.Remote.Enabled && c.Queue.URL == "" {
			errs = append(errs, errors.New("queue.url is required when remote.attempt_log is queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.attempt_log must be %q or %q, got %q",
			AttemptLogDirect, AttemptLogQueue, c.Remote.AttemptLog))
	}
	if c.Remote.Enabled && c.Remote.DatabaseURL == "" {
		errs = append(errs, errors.New("remote.database_url is required when remote is enabled"))
	}

	return errors.Join(errs...)
}

// Layout builds the level layout from stages_per_level
func (c *LocalConfig) Layout() (domain.Layout, error) {
	return domain.NewLayout(c.Progression.StagesPerLevel)
}

// RemoteTimeout returns the per-call remote timeout
func (c *LocalConfig) RemoteTimeout() time.Duration {
	return time.Duration(c.Progression.RemoteTimeoutSeconds) * time.Second
}

// Addr returns the daemon listen address
func (c *LocalConfig) Addr() string {
	return net.JoinHostPort(c.Daemon.Bind, strconv.Itoa(c.Daemon.Port))
}

// CacheDir returns the cache location, defaulting under dir
func (c *LocalConfig) CacheDir(dir string) string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(dir, "cache")
}

// ApplyEnv overlays settings present in the environment
func (c *LocalConfig) ApplyEnv(env *Config) {
	if env == nil {
		return
	}
	if env.Port > 0 {
		c.Daemon.Port = env.Port
	}
	if env.Debug {
		c.Daemon.LogLevel = "debug"
	}
	if env.DatabaseURL != "" {
		c.Remote.DatabaseURL = env.DatabaseURL
		c.Remote.Enabled = true
	}
	if env.RabbitMQURL != "" {
		c.Queue.URL = env.RabbitMQURL
	}
	if env.UserID != "" {
		c.User.ID = env.UserID
	}
}

// LoadLocalConfig loads configuration from ~/.fracquest/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := FracquestDir()
	if err != nil {
		return nil, err
	}
	return loadLocalConfigFrom(dir)
}

func loadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads connection strings from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	data, err := os.ReadFile(secretsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	if secrets.DatabaseURL != "" {
		cfg.Remote.DatabaseURL = secrets.DatabaseURL
	}
	if secrets.QueueURL != "" {
		cfg.Queue.URL = secrets.QueueURL
	}

	return nil
}

// SaveLocalConfig saves configuration to ~/.fracquest/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureFracquestDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves connection strings to ~/.fracquest/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureFracquestDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
