package config

import (
	"os"
	"strconv"
	"strings"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setIntFromEnv(key string, setter func(int)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setter(n)
		}
	}
}

func setToggleFromEnv(key string, setter func(bool)) {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	switch v {
	case "1", "true", "yes", "on":
		setter(true)
	case "0", "false", "no", "off":
		setter(false)
	}
}

// applyEnv layers KEYBALANCER_* environment variables over the file values.
func (c *Config) applyEnv() {
	setIntFromEnv("KEYBALANCER_PORT", func(n int) { c.Port = n })
	setToggleFromEnv("KEYBALANCER_DEBUG", func(b bool) { c.Debug = b })
	if v := getenv("KEYBALANCER_LOG_FILE", ""); v != "" {
		c.LogFile = v
	}
	if v := getenv("KEYBALANCER_STORAGE_BACKEND", ""); v != "" {
		c.StorageBackend = v
	}
	if v := getenv("KEYBALANCER_DATA_DIR", ""); v != "" {
		c.DataDir = v
	}
	if v := getenv("KEYBALANCER_REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := getenv("KEYBALANCER_REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	setIntFromEnv("KEYBALANCER_REDIS_DB", func(n int) { c.RedisDB = n })
	if v := getenv("KEYBALANCER_REDIS_PREFIX", ""); v != "" {
		c.RedisPrefix = v
	}
	setToggleFromEnv("KEYBALANCER_USE_PROXIES", func(b bool) { c.UseProxiesForBalancer = b })
	setIntFromEnv("KEYBALANCER_RATE_LIMIT_RPS", func(n int) { c.RateLimitRPS = n })
	setIntFromEnv("KEYBALANCER_RATE_LIMIT_BURST", func(n int) { c.RateLimitBurst = n })
	if v := getenv("KEYBALANCER_ADMIN_USERNAME", ""); v != "" {
		c.AdminUsername = v
	}
	if v := getenv("KEYBALANCER_ADMIN_PASSWORD", ""); v != "" {
		c.AdminPassword = v
	}
	setIntFromEnv("KEYBALANCER_SESSION_TTL_HOURS", func(n int) { c.SessionTTLHours = n })
}
