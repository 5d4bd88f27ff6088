package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL         MySQLConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Migrate       bool
	HTTPAddr      string
	AgentKey      string // shared secret for agent-originated requests
	StatsCacheSec int
	Linker        LinkerConfig
	OfflineMarker OfflineMarkerConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LinkerConfig holds action-log linker sweep configuration
type LinkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// OfflineMarkerConfig holds stale-node marker configuration
type OfflineMarkerConfig struct {
	Enabled       bool
	IntervalSec   int
	StaleAfterSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "vpnpanel"),
		},
		Migrate:       getEnv("MIGRATE", "0") == "1",
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		AgentKey:      getEnv("AGENT_KEY", ""),
		StatsCacheSec: getEnvInt("STATS_CACHE_SEC", 15),
		Linker: LinkerConfig{
			Enabled:     getEnv("LINKER_ENABLED", "1") == "1",
			IntervalSec: getEnvInt("LINKER_INTERVAL_SEC", 60),
			BatchSize:   getEnvInt("LINKER_BATCH_SIZE", 50),
		},
		OfflineMarker: OfflineMarkerConfig{
			Enabled:       getEnv("OFFLINE_MARKER_ENABLED", "1") == "1",
			IntervalSec:   getEnvInt("OFFLINE_MARKER_INTERVAL_SEC", 60),
			StaleAfterSec: getEnvInt("OFFLINE_MARKER_STALE_AFTER_SEC", 300),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AgentKey == "" {
		return nil, fmt.Errorf("AGENT_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from an INI file with environment
// variable override (ENV > INI > default).
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "vpnpanel"),
		},
		Migrate:       getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr:      getValue("HTTP_ADDR", "http", "addr", ":8080"),
		AgentKey:      getValue("AGENT_KEY", "agent", "key", ""),
		StatsCacheSec: getValueInt("STATS_CACHE_SEC", "app", "stats_cache_sec", 15),
		Linker: LinkerConfig{
			Enabled:     getValueBool("LINKER_ENABLED", "linker", "enabled", true),
			IntervalSec: getValueInt("LINKER_INTERVAL_SEC", "linker", "interval_sec", 60),
			BatchSize:   getValueInt("LINKER_BATCH_SIZE", "linker", "batch_size", 50),
		},
		OfflineMarker: OfflineMarkerConfig{
			Enabled:       getValueBool("OFFLINE_MARKER_ENABLED", "offline_marker", "enabled", true),
			IntervalSec:   getValueInt("OFFLINE_MARKER_INTERVAL_SEC", "offline_marker", "interval_sec", 60),
			StaleAfterSec: getValueInt("OFFLINE_MARKER_STALE_AFTER_SEC", "offline_marker", "stale_after_sec", 300),
		},
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.AgentKey == "" {
		return nil, fmt.Errorf("agent key is required")
	}

	return cfg, nil
}
