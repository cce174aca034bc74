// Package config reads the relay configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage backends.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// Config is the runtime configuration shared by the server, the function
// entry points and the CLI.
type Config struct {
	Port    int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	Backend string `envconfig:"STORAGE_BACKEND" default:"drive" validate:"oneof=drive gcs local"`

	CredentialsJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	CredentialsFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE" default:"service-account.json"`
	DriveFolderID   string `envconfig:"DRIVE_FOLDER_ID"`
	GCSBucket       string `envconfig:"GCS_BUCKET" validate:"required_if=Backend gcs"`
	LocalDir        string `envconfig:"LOCAL_STORAGE_DIR" default:"uploads" validate:"required_if=Backend local"`

	// MaxUploadBytes defaults to 50 MiB.
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"52428800" validate:"gt=0"`
	UploadTimeout  time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"2m" validate:"gt=0"`
	SpoolDir       string        `envconfig:"SPOOL_DIR"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000,https://gyanasetu.web.app,https://gyanasetu.firebaseapp.com" validate:"dive,required"`

	LogLevel     string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogAddSource bool   `envconfig:"LOG_ADD_SOURCE" default:"false"`
}

var validate = validator.New()

// Load reads an optional .env file, then the process environment, and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr is the listen address for the standalone server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}
