package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	BlobMemory = "memory"
	BlobS3     = "s3"
)

type Config struct {
	Addr               string
	Environment        string
	FrontendDir        string
	LogLevel           slog.Level
	JWTSecret          string
	DataEncryptionKey  string
	RecordStoreDriver  string
	SQLitePath         string
	DatabaseURL        string
	DBMaxConns         int
	RunMigrations      bool
	RedisURL           string
	BlobDriver         string
	BlobS3Bucket       string
	BlobS3Region       string
	BlobS3Endpoint     string
	BlobS3PathStyle    bool
	BlobS3AccessKeyID  string
	BlobS3SecretKey    string
	RunSeed            bool
	SeedAdminEmail     string
	SeedAdminPassword  string
	SeedAdminName      string
	EmailEnabled       bool
	EmailFrom          string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPUseTLS         bool
	NotifyEmail        string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	TransitionTimeout  time.Duration
	InflightTTL        time.Duration
	ReconcileInterval  time.Duration
	MetricsEnabled     bool
	CORSAllowedOrigins []string
}

// Load reads .env files (when present) and then the process environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("env file load failed", "file", file, "err", err)
		}
	}
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		FrontendDir:        getEnv("FRONTEND_DIR", "frontend/dist"),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		RecordStoreDriver:  strings.ToLower(getEnv("RECORD_STORE_DRIVER", StoreSQLite)),
		SQLitePath:         getEnv("SQLITE_PATH", "data/staffdesk.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		RedisURL:           getEnv("REDIS_URL", ""),
		BlobDriver:         strings.ToLower(getEnv("BLOB_DRIVER", BlobMemory)),
		BlobS3Bucket:       getEnv("BLOB_S3_BUCKET", ""),
		BlobS3Region:       getEnv("BLOB_S3_REGION", "us-east-1"),
		BlobS3Endpoint:     getEnv("BLOB_S3_ENDPOINT", ""),
		BlobS3PathStyle:    getEnvBool("BLOB_S3_PATH_STYLE", false),
		BlobS3AccessKeyID:  getEnv("BLOB_S3_ACCESS_KEY_ID", ""),
		BlobS3SecretKey:    getEnv("BLOB_S3_SECRET_ACCESS_KEY", ""),
		RunSeed:            getEnvBool("RUN_SEED", true),
		SeedAdminEmail:     getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedAdminName:      getEnv("SEED_ADMIN_NAME", "Administrator"),
		EmailEnabled:       getEnvBool("EMAIL_ENABLED", false),
		EmailFrom:          getEnv("EMAIL_FROM", "no-reply@example.com"),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:         getEnvBool("SMTP_USE_TLS", true),
		NotifyEmail:        getEnv("NOTIFY_EMAIL", ""),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TransitionTimeout:  getEnvDuration("TRANSITION_TIMEOUT", 15*time.Second),
		InflightTTL:        getEnvDuration("INFLIGHT_TTL", time.Minute),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.RecordStoreDriver {
	case StoreMemory:
		if c.Environment == "production" {
			return fmt.Errorf("RECORD_STORE_DRIVER=memory is not allowed in production")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite record store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres record store")
		}
	default:
		return fmt.Errorf("RECORD_STORE_DRIVER must be memory, sqlite or postgres, got %q", c.RecordStoreDriver)
	}
	switch c.BlobDriver {
	case BlobMemory:
	case BlobS3:
		if strings.TrimSpace(c.BlobS3Bucket) == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required when BLOB_DRIVER is s3")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be memory or s3, got %q", c.BlobDriver)
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && c.SeedAdminEmail != "" && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be set or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.TransitionTimeout < 0 {
		return fmt.Errorf("TRANSITION_TIMEOUT must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
