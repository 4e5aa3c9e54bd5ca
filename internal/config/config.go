// Package config loads runtime settings from the environment.
// A .env file, when present, is loaded first; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server and the admin CLI read.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`

	DatabaseDSN   string `mapstructure:"database_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`

	TypingTimeout  time.Duration `mapstructure:"typing_timeout"`
	ChatRequestTTL time.Duration `mapstructure:"chat_request_ttl"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`

	BlobBackend    string `mapstructure:"blob_backend"`
	UploadDir      string `mapstructure:"upload_dir"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`
}

var keys = []string{
	"http_addr", "log_level",
	"database_dsn", "redis_addr", "redis_password", "redis_db",
	"jwt_secret", "jwt_ttl", "jwt_issuer",
	"typing_timeout", "chat_request_ttl", "history_limit", "send_buffer",
	"blob_backend", "upload_dir", "public_base_url", "max_upload_bytes",
	"minio_endpoint", "minio_access_key", "minio_secret_key", "minio_bucket", "minio_use_ssl",
}

// Load reads and validates the configuration. envFiles are optional .env
// paths; a missing file is only logged, as in local development it usually is absent.
func Load(envFiles ...string) (*Config, error) {
	cfg, err := Read(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads the configuration without validating it. The admin CLI uses it
// because it needs only the store settings.
func Read(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("Warning: no .env file loaded")
	}

	v := viper.New()
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_dsn", "host=localhost user=user password=password dbname=chatrelay port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_ttl", DefaultTokenTTL)
	v.SetDefault("jwt_issuer", DefaultIssuer)
	v.SetDefault("typing_timeout", DefaultTypingTimeout)
	v.SetDefault("chat_request_ttl", time.Duration(0))
	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("send_buffer", DefaultSendBuffer)
	v.SetDefault("blob_backend", "disk")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("public_base_url", "/uploads")
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("minio_bucket", "attachments")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so bind the ones without defaults too.
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("TYPING_TIMEOUT must be positive, got %s", c.TypingTimeout)
	}
	if c.ChatRequestTTL < 0 {
		return fmt.Errorf("CHAT_REQUEST_TTL must not be negative, got %s", c.ChatRequestTTL)
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	switch c.BlobBackend {
	case "disk":
	case "minio":
		if c.MinioEndpoint == "" {
			return errors.New("MINIO_ENDPOINT is required when BLOB_BACKEND=minio")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	return nil
}
