package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Snapshot holds runtime configuration for the acquisition server. It is an
// immutable value: reloads build a fresh Snapshot and swap it whole, fields
// are never mutated in place.
type Snapshot struct {
	Environment        string
	Addr               string
	StorageDriver      string
	DatabaseURL        string
	MigrationsDir      string
	JSONStorePath      string
	BlobDir            string
	DownloadURLBase    string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CacheTTL           time.Duration
	RedisOpTimeout     time.Duration
	EnableDiffPackages bool
	MaxFieldLength     int
	RequestTimeout     time.Duration
	MetricsRetention   time.Duration
	AdoptionFlushEvery time.Duration
	WSBuffer           int
}

// Load constructs a Snapshot from environment variables.
func Load() Snapshot {
	return Snapshot{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":3000"),
		StorageDriver:      GetString("STORAGE_DRIVER", "postgres"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://updrift:updrift@db:5432/updrift?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JSONStorePath:      GetString("JSON_STORE_PATH", "./data/deployments.json"),
		BlobDir:            GetString("BLOB_DIR", "./data/blobs"),
		DownloadURLBase:    GetString("DOWNLOAD_URL_BASE", ""),
		RedisAddr:          GetString("REDIS_ADDR", "redis:6379"),
		RedisPassword:      GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		CacheTTL:           time.Duration(GetInt("PACKAGE_CACHE_TTL_SECONDS", 60)) * time.Second,
		RedisOpTimeout:     time.Duration(GetInt("REDIS_OP_TIMEOUT_MS", 500)) * time.Millisecond,
		EnableDiffPackages: GetBool("ENABLE_DIFF_PACKAGES", true),
		MaxFieldLength:     GetInt("MAX_FIELD_LENGTH", 128),
		RequestTimeout:     time.Duration(GetInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		MetricsRetention:   time.Duration(GetInt("METRICS_LAST_SEEN_TTL_HOURS", 720)) * time.Hour,
		AdoptionFlushEvery: time.Duration(GetInt("ADOPTION_FLUSH_SECONDS", 10)) * time.Second,
		WSBuffer:           GetInt("WS_ADOPTION_BUFFER", 100),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
