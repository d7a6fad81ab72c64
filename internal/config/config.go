// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultFlashSecret = "dev-secret-key"

// Config holds all runtime configuration for the service.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development" validate:"oneof=development test staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`

	// Upload pipeline
	ContainerName       string        `env:"CONTAINER_NAME" envDefault:"datasets" validate:"required,min=3,max=63"`
	KeyPrefix           string        `env:"KEY_PREFIX" validate:"keyprefix"`
	MaxUploadSizeMB     int64         `env:"MAX_UPLOAD_SIZE_MB" envDefault:"512" validate:"min=1,max=10240"`
	AllowedContentTypes []string      `env:"ALLOWED_CONTENT_TYPES" envSeparator:"," validate:"dive,mediarange"`
	UploadOverwrite     bool          `env:"UPLOAD_OVERWRITE" envDefault:"false"`
	SniffContentType    bool          `env:"SNIFF_CONTENT_TYPE" envDefault:"false"`
	SASTTL              time.Duration `env:"SAS_TTL" envDefault:"30m" validate:"min=1m,max=168h"`

	// Object storage (S3-compatible: MinIO locally, any S3 provider in production)
	StorageDriver     string `env:"STORAGE_DRIVER" envDefault:"minio" validate:"oneof=minio local memory"`
	StorageEndpoint   string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000" validate:"required_if=StorageDriver minio"`
	StorageAccessKey  string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	StorageSecretKey  string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	StorageRegion     string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	StorageUseSSL     bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	StoragePublicRead bool   `env:"STORAGE_PUBLIC_READ" envDefault:"false"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR" envDefault:"./data" validate:"required_if=StorageDriver local"`

	// HTTP
	FlashSecret        string        `env:"FLASH_SECRET" envDefault:"dev-secret-key" validate:"required"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5m"`
	HTTPWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	HTTPIdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// FILE_PREFIX is the older name for KEY_PREFIX.
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = os.Getenv("FILE_PREFIX")
	}
	cfg.KeyPrefix = strings.TrimSpace(cfg.KeyPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and production safety rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("keyprefix", validKeyPrefix); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	if err := v.RegisterValidation("mediarange", validMediaRange); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.IsProduction() && c.FlashSecret == defaultFlashSecret {
		return errors.New("invalid config: FLASH_SECRET must be set in production")
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}

// validKeyPrefix rejects prefixes that would let keys escape their namespace.
func validKeyPrefix(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return true
	}
	if strings.HasPrefix(p, "/") || strings.ContainsRune(p, '\\') {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// validMediaRange accepts "*", "type/*" and "type/subtype" allow-list entries.
func validMediaRange(fl validator.FieldLevel) bool {
	p := strings.TrimSpace(fl.Field().String())
	if p == "*" {
		return true
	}
	typ, sub, ok := strings.Cut(p, "/")
	return ok && typ != "" && sub != "" && !strings.Contains(sub, "/")
}
