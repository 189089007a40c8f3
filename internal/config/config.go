// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	// DBPath is the SQLite catalog database.
	DBPath string
	// DeviceIDFile persists this device's stable sync identity.
	DeviceIDFile string

	LogLevel   string
	LogConsole bool

	// Sync remote. SyncEnabled false leaves the device standalone.
	SyncEnabled   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MetricsAddr is where the run mode serves /metrics; "" disables it.
	MetricsAddr string

	// Provider API politeness cap, requests per second. 0 = unlimited.
	ProviderRateLimit float64
	ProviderTimeout   time.Duration

	EpgRetention time.Duration
	PurgeAfter   time.Duration

	// DefaultRefresh applies to playlists that do not set their own cadence.
	DefaultRefresh time.Duration
}

// Load reads config from IPTV_CATALOG_* environment variables. Call
// LoadEnvFile(".env") first to use a .env file.
func Load() *Config {
	c := &Config{
		DBPath:            getEnv("IPTV_CATALOG_DB", "./catalog.db"),
		DeviceIDFile:      getEnv("IPTV_CATALOG_DEVICE_ID_FILE", ""),
		LogLevel:          getEnv("IPTV_CATALOG_LOG_LEVEL", "info"),
		LogConsole:        getEnvBool("IPTV_CATALOG_LOG_CONSOLE", false),
		SyncEnabled:       getEnvBool("IPTV_CATALOG_SYNC_ENABLED", false),
		RedisAddr:         getEnv("IPTV_CATALOG_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("IPTV_CATALOG_REDIS_PASSWORD"),
		RedisDB:           getEnvInt("IPTV_CATALOG_REDIS_DB", 0),
		MetricsAddr:       getEnv("IPTV_CATALOG_METRICS_ADDR", ""),
		ProviderRateLimit: getEnvFloat("IPTV_CATALOG_PROVIDER_RATE_LIMIT", 0),
		ProviderTimeout:   getEnvDuration("IPTV_CATALOG_PROVIDER_TIMEOUT", 45*time.Second),
		EpgRetention:      getEnvDuration("IPTV_CATALOG_EPG_RETENTION", 7*24*time.Hour),
		PurgeAfter:        getEnvDuration("IPTV_CATALOG_PURGE_AFTER", 30*24*time.Hour),
		DefaultRefresh:    getEnvDuration("IPTV_CATALOG_REFRESH", 12*time.Hour),
	}
	if c.DeviceIDFile == "" {
		c.DeviceIDFile = filepath.Join(filepath.Dir(c.DBPath), "device-id")
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 45 * time.Second
	}
	if c.DefaultRefresh <= 0 {
		c.DefaultRefresh = 12 * time.Hour
	}
	return c
}

// DeviceID returns the persisted device identity, minting and saving one on
// first run. The id must stay stable across restarts or sync records from
// this device look like a new peer every time.
func (c *Config) DeviceID() (string, error) {
	raw, err := os.ReadFile(c.DeviceIDFile)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(c.DeviceIDFile), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(c.DeviceIDFile, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
