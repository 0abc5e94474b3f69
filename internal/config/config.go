package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration: YAML file merged with environment
// overrides. The zero value is not usable; call Load or LoadWithFile.
type Config struct {
	// Server settings
	Port    int    `yaml:"port" json:"port"`
	Debug   bool   `yaml:"debug" json:"debug"`
	LogFile string `yaml:"log_file" json:"log_file"`

	// Storage settings
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"`
	DataDir        string `yaml:"data_dir" json:"data_dir"`
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" json:"redis_password"`
	RedisDB        int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix" json:"redis_prefix"`

	// Balancer settings
	UseProxiesForBalancer bool `yaml:"use_proxies_for_balancer" json:"use_proxies_for_balancer"`

	// HTTP settings
	RateLimitRPS   int `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst"`

	// Auth settings
	AdminUsername   string `yaml:"admin_username" json:"admin_username"`
	AdminPassword   string `yaml:"admin_password" json:"admin_password"`
	SessionTTLHours int    `yaml:"session_ttl_hours" json:"session_ttl_hours"`

	mu sync.RWMutex `yaml:"-" json:"-"`
}

// Defaults returns a config with every field at its default.
func Defaults() *Config {
	return &Config{
		Port:            8080,
		StorageBackend:  "file",
		DataDir:         "data",
		RedisPrefix:     "keybalancer:",
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		SessionTTLHours: 24 * 7,
	}
}

// LoadWithFile reads the YAML file (missing file is fine: defaults apply),
// then applies environment overrides on top.
func LoadWithFile(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults + env only
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.StorageBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.StorageBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis backend selected but redis_addr is empty")
	}
	return nil
}

// ProxiesEnabled reports the current egress-proxy flag, safe for concurrent
// reads against SetProxiesEnabled.
func (c *Config) ProxiesEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UseProxiesForBalancer
}

// SetProxiesEnabled flips the egress-proxy flag at runtime.
func (c *Config) SetProxiesEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UseProxiesForBalancer = on
}
