// Package config loads the assistant configuration from a YAML file with
// environment-variable overrides. It provides typed structs for every
// subsystem (local repository, remote sources, completion, Redis, logging,
// metrics).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CentralURL is the repository used when a project declares none.
const CentralURL = "https://repo1.maven.org/maven2/"

// Config is the top-level application configuration.
type Config struct {
	LocalRepository LocalRepositoryConfig `yaml:"localRepository"`
	Remote          RemoteConfig          `yaml:"remote"`
	Completion      CompletionConfig      `yaml:"completion"`
	Redis           RedisConfig           `yaml:"redis"`
	Logging         LoggingConfig         `yaml:"logging"`
	Metrics         MetricsConfig         `yaml:"metrics"`
}

// LocalRepositoryConfig points at the local artifact store.
type LocalRepositoryConfig struct {
	Path          string        `yaml:"path"`
	Exclude       []string      `yaml:"exclude"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// RemoteConfig controls remote index contexts and their on-disk snapshots.
type RemoteConfig struct {
	DefaultSource          string            `yaml:"defaultSource"`
	IndexDir               string            `yaml:"indexDir"`
	ContextTimeout         time.Duration     `yaml:"contextTimeout"`
	QueryTimeout           time.Duration     `yaml:"queryTimeout"`
	RefreshInterval        time.Duration     `yaml:"refreshInterval"`
	FlushInterval          time.Duration     `yaml:"flushInterval"`
	MaxSegmentsBeforeMerge int               `yaml:"maxSegmentsBeforeMerge"`
	RetryAttempts          int               `yaml:"retryAttempts"`
	SearchEndpoints        map[string]string `yaml:"searchEndpoints"`
	UserAgent              string            `yaml:"userAgent"`
}

// SearchEndpoint returns the search API configured for a source URL.
func (r RemoteConfig) SearchEndpoint(source string) string {
	if ep, ok := r.SearchEndpoints[source]; ok {
		return ep
	}
	return r.SearchEndpoints[strings.TrimSuffix(source, "/")+"/"]
}

// CompletionConfig bounds completion requests.
type CompletionConfig struct {
	Deadline time.Duration `yaml:"deadline"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.LocalRepository.Path = expandHome(cfg.LocalRepository.Path)
	cfg.Remote.IndexDir = expandHome(cfg.Remote.IndexDir)
	return cfg, nil
}

// Default returns a Config with defaults for a single developer machine.
func Default() *Config {
	home, _ := os.UserHomeDir()
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(home, ".cache")
	}
	return &Config{
		LocalRepository: LocalRepositoryConfig{
			Path:          filepath.Join(home, ".m2", "repository"),
			Watch:         true,
			WatchDebounce: 200 * time.Millisecond,
		},
		Remote: RemoteConfig{
			DefaultSource:          CentralURL,
			IndexDir:               filepath.Join(cacheDir, "pomassist", "indexes"),
			ContextTimeout:         30 * time.Second,
			QueryTimeout:           15 * time.Second,
			RefreshInterval:        24 * time.Hour,
			FlushInterval:          time.Minute,
			MaxSegmentsBeforeMerge: 8,
			RetryAttempts:          2,
			SearchEndpoints: map[string]string{
				CentralURL: "https://search.maven.org/solrsearch/select",
			},
			UserAgent: "pomassist",
		},
		Completion: CompletionConfig{
			Deadline: 2 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9464,
		},
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// applyEnvOverrides reads PA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PA_LOCAL_REPOSITORY"); v != "" {
		cfg.LocalRepository.Path = v
	}
	if v := os.Getenv("PA_LOCAL_REPOSITORY_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LocalRepository.Watch = b
		}
	}
	if v := os.Getenv("PA_REMOTE_DEFAULT_SOURCE"); v != "" {
		cfg.Remote.DefaultSource = v
	}
	if v := os.Getenv("PA_REMOTE_INDEX_DIR"); v != "" {
		cfg.Remote.IndexDir = v
	}
	if v := os.Getenv("PA_COMPLETION_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Completion.Deadline = d
		}
	}
	if v := os.Getenv("PA_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("PA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PA_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("PA_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
