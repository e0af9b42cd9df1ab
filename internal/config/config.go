package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	MinIO      MinIOConfig
	Valkey     ValkeyConfig
	Auth       AuthConfig
	OpenRouter OpenRouterConfig
	Bedrock    BedrockConfig
	Bulk       BulkConfig
	Progress   ProgressConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the URL handed to the captioner; defaults to
	// the endpoint + bucket if empty.
	PublicBaseURL string
}

type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled      bool
	IssuerURL    string
	PublicIssuer string
	Audience     string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type BedrockConfig struct {
	Region  string
	ModelID string
}

type BulkConfig struct {
	// MaxConcurrency caps simultaneous unit pipelines per batch.
	MaxConcurrency int
	MaxUploadFiles int
	MaxUpdates     int
	MaxDeletes     int
	MaxRecaptions  int
}

type ProgressConfig struct {
	// EvictGrace is how long a terminal session stays resolvable so that
	// subscribers connecting around batch completion still receive the final
	// snapshot. Too short a window drops the complete event silently.
	EvictGrace time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 120)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "pictor"),
			Password: getEnv("DB_PASSWORD", "pictor"),
			Name:     getEnv("DB_NAME", "pictor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", "pictor"),
			SecretKey:     getEnv("MINIO_SECRET_KEY", "pictor123"),
			Bucket:        getEnv("MINIO_BUCKET", "pictor-images"),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:      getEnvBool("AUTH_ENABLED", false),
			IssuerURL:    getEnv("AUTH_ISSUER_URL", ""),
			PublicIssuer: getEnv("AUTH_PUBLIC_ISSUER", ""),
			Audience:     getEnv("AUTH_AUDIENCE", "pictor-api"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			Model:   getEnv("OPENROUTER_MODEL", ""),
			BaseURL: getEnv("OPENROUTER_BASE_URL", ""),
		},
		Bedrock: BedrockConfig{
			Region:  getEnv("BEDROCK_REGION", ""),
			ModelID: getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		},
		Bulk: BulkConfig{
			MaxConcurrency: getEnvInt("BULK_MAX_CONCURRENCY", 8),
			MaxUploadFiles: getEnvInt("BULK_MAX_UPLOAD_FILES", 100),
			MaxUpdates:     getEnvInt("BULK_MAX_UPDATES", 50),
			MaxDeletes:     getEnvInt("BULK_MAX_DELETES", 100),
			MaxRecaptions:  getEnvInt("BULK_MAX_RECAPTIONS", 20),
		},
		Progress: ProgressConfig{
			EvictGrace: time.Duration(getEnvInt("PROGRESS_EVICT_GRACE_SECS", 30)) * time.Second,
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
