package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Twitch   OAuthClientConfig
	YouTube  OAuthClientConfig
	Polling  PollingConfig
	AWS      AWSConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	BaseURL            string // public URL used to build OAuth redirect URIs
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/brocker?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	CookieName  string
}

// OAuthClientConfig holds the registered OAuth application for one streaming platform.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	RatePerMin   int // outbound API calls per minute
}

// PollingConfig controls the viewer-count poll loop.
type PollingConfig struct {
	IntervalSec        int
	RefreshSkewSec     int
	UpstreamTimeoutSec int
}

// AWSConfig holds AWS credentials and the bucket for session exports.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ExportsBucket        string
	PresignExpireMinutes int
}

// WorkerConfig holds settings for cmd/worker.
type WorkerConfig struct {
	MetricsPort string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Interval returns the poll period.
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// RefreshSkew returns how close to expiry a token may get before it is refreshed.
func (c PollingConfig) RefreshSkew() time.Duration {
	return time.Duration(c.RefreshSkewSec) * time.Second
}

// UpstreamTimeout bounds a single HTTP call to a platform API.
func (c PollingConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "3000")
	cfg := &Config{
		Server: ServerConfig{
			Port:               port,
			BaseURL:            strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "brocker"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "dev_secret_change_me"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 7*24),
			CookieName:  getEnv("JWT_COOKIE_NAME", "brocker_token"),
		},
		Twitch: OAuthClientConfig{
			ClientID:     getEnv("TWITCH_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITCH_CLIENT_SECRET", ""),
			RatePerMin:   getEnvInt("TWITCH_RATE_PER_MIN", 800),
		},
		YouTube: OAuthClientConfig{
			ClientID:     getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret: getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RatePerMin:   getEnvInt("YOUTUBE_RATE_PER_MIN", 60),
		},
		Polling: PollingConfig{
			IntervalSec:        getEnvInt("POLL_INTERVAL_SEC", 15),
			RefreshSkewSec:     getEnvInt("TOKEN_REFRESH_SKEW_SEC", 30),
			UpstreamTimeoutSec: getEnvInt("UPSTREAM_TIMEOUT_SEC", 10),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", "brocker-session-exports"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Worker: WorkerConfig{
			MetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		},
	}
	if cfg.Polling.IntervalSec <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SEC must be positive, got %d", cfg.Polling.IntervalSec)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
