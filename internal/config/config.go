// Package config loads and saves Jetty's application configuration: where
// the graph blob lives, which connectors are enabled, and the concurrency
// limits for fetch and apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all Jetty application settings.
type Config struct {
	Mode string `yaml:"mode"` // "local" or "ci"

	Storage    StorageConfig    `yaml:"storage"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Apply      ApplyConfig      `yaml:"apply"`
	ConfigTree ConfigTreeConfig `yaml:"config_tree"`
}

// StorageConfig controls where the serialized graph blob and cache metadata live.
type StorageConfig struct {
	GraphBlobPath string `yaml:"graph_blob_path"`
}

// ConnectorsConfig lists which connector namespaces are active and their endpoints.
type ConnectorsConfig struct {
	Warehouse ConnectorEndpoint `yaml:"warehouse"`
	BI        ConnectorEndpoint `yaml:"bi"`
	Transform ConnectorEndpoint `yaml:"transform"`
}

// ConnectorEndpoint is the per-connector wiring: whether it's enabled, where
// it talks to, and its rate limit. Secrets never live here; they go
// through the CredentialStore.
type ConnectorEndpoint struct {
	Enabled      bool    `yaml:"enabled"`
	Namespace    string  `yaml:"namespace"`
	DSNOrURL     string  `yaml:"dsn_or_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// FetchConfig bounds the concurrency of a fetch run.
type FetchConfig struct {
	MaxConcurrentConnectors int           `yaml:"max_concurrent_connectors"`
	MaxConcurrentQueries    int           `yaml:"max_concurrent_queries"` // per-connector sub-query bound
	Timeout                 time.Duration `yaml:"timeout"`
}

// ApplyConfig bounds the concurrency of an apply run.
type ApplyConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"` // within one batch
}

// ConfigTreeConfig points at the declarative YAML config tree.
type ConfigTreeConfig struct {
	Root       string `yaml:"root"`
	GroupsFile string `yaml:"groups_file"`
	UsersFile  string `yaml:"users_file"`
}

// Default returns Jetty's baseline configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".jetty")
	return &Config{
		Mode: "local",
		Storage: StorageConfig{
			GraphBlobPath: filepath.Join(root, "graph.db"),
		},
		Connectors: ConnectorsConfig{
			Warehouse: ConnectorEndpoint{Namespace: "warehouse", RateLimitRPS: 10},
			BI:        ConnectorEndpoint{Namespace: "bi", RateLimitRPS: 5},
			Transform: ConnectorEndpoint{Namespace: "transform", RateLimitRPS: 0},
		},
		Fetch: FetchConfig{
			MaxConcurrentConnectors: 3,
			MaxConcurrentQueries:    5,
			Timeout:                 10 * time.Minute,
		},
		Apply: ApplyConfig{
			MaxConcurrentRequests: 8,
		},
		ConfigTree: ConfigTreeConfig{
			Root:       filepath.Join(root, "config"),
			GroupsFile: filepath.Join(root, "config", "groups.yaml"),
			UsersFile:  filepath.Join(root, "config", "users.yaml"),
		},
	}
}

// Load reads configuration from path (or the standard search locations if
// path is empty), layering defaults, YAML file, and environment overrides.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("connectors", cfg.Connectors)
	v.SetDefault("fetch", cfg.Fetch)
	v.SetDefault("apply", cfg.Apply)
	v.SetDefault("config_tree", cfg.ConfigTree)

	v.SetEnvPrefix("JETTY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".jetty")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".jetty"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadEnvFiles() {
	envFiles := []string{".env.local", ".env", ".env.example"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".jetty", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("JETTY_WAREHOUSE_DSN"); dsn != "" {
		cfg.Connectors.Warehouse.DSNOrURL = dsn
	}
	if url := os.Getenv("JETTY_BI_URL"); url != "" {
		cfg.Connectors.BI.DSNOrURL = url
	}
	if url := os.Getenv("JETTY_TRANSFORM_URL"); url != "" {
		cfg.Connectors.Transform.DSNOrURL = url
	}
	if path := os.Getenv("JETTY_GRAPH_BLOB_PATH"); path != "" {
		cfg.Storage.GraphBlobPath = expandPath(path)
	}
	if root := os.Getenv("JETTY_CONFIG_ROOT"); root != "" {
		cfg.ConfigTree.Root = expandPath(root)
	}
	if n := os.Getenv("JETTY_FETCH_MAX_CONNECTORS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Fetch.MaxConcurrentConnectors = v
		}
	}
	if n := os.Getenv("JETTY_FETCH_MAX_QUERIES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Fetch.MaxConcurrentQueries = v
		}
	}
	if n := os.Getenv("JETTY_APPLY_MAX_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Apply.MaxConcurrentRequests = v
		}
	}
	if mode := os.Getenv("JETTY_MODE"); mode != "" {
		cfg.Mode = mode
	}
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save writes c to path as YAML via viper.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("mode", c.Mode)
	v.Set("storage", c.Storage)
	v.Set("connectors", c.Connectors)
	v.Set("fetch", c.Fetch)
	v.Set("apply", c.Apply)
	v.Set("config_tree", c.ConfigTree)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
