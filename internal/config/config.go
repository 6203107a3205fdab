package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend names accepted in LIFEOS_REMOTE_BACKEND.
const (
	BackendNone = ""
	BackendAPI  = "api"
	BackendS3   = "s3"
)

// Config holds all environment-based configuration for lifeos-sync.
type Config struct {
	// Account this daemon syncs. Names the remote document file.
	AccountID string `env:"LIFEOS_ACCOUNT_ID" envDefault:"default"`

	// Remote backend: "api", "s3", or empty for local-only operation.
	RemoteBackend string `env:"LIFEOS_REMOTE_BACKEND" envDefault:""`

	// API backend settings (required when backend is "api").
	APIBaseURL string `env:"LIFEOS_API_URL"`
	APIToken   string `env:"LIFEOS_API_TOKEN"`

	// S3 backend settings (required when backend is "s3").
	S3Endpoint  string `env:"LIFEOS_S3_ENDPOINT"`
	S3AccessKey string `env:"LIFEOS_S3_ACCESS_KEY"`
	S3SecretKey string `env:"LIFEOS_S3_SECRET_KEY"`
	S3Bucket    string `env:"LIFEOS_S3_BUCKET"`
	S3Prefix    string `env:"LIFEOS_S3_PREFIX" envDefault:"lifeos"`
	S3UseSSL    bool   `env:"LIFEOS_S3_USE_SSL" envDefault:"true"`

	// Optional passphrase for at-rest encryption of the remote document.
	// When empty the document is uploaded as plain JSON.
	EncryptionPassword string `env:"LIFEOS_ENCRYPTION_PASSWORD"`

	// Directory for the local state database. Defaults to ~/.lifeos.
	DataDir string `env:"LIFEOS_DATA_DIR"`

	// Background reconciler cadence.
	SyncInitialDelay time.Duration `env:"LIFEOS_SYNC_INITIAL_DELAY" envDefault:"5s"`
	SyncInterval     time.Duration `env:"LIFEOS_SYNC_INTERVAL" envDefault:"30s"`

	// Debounce window for coalescing remote writes after local edits.
	SaveDebounce time.Duration `env:"LIFEOS_SAVE_DEBOUNCE" envDefault:"2s"`

	// Consent flag for legacy migration. The migration prompt is an
	// external collaborator; in a headless run this flag stands in for
	// the user's "migrate now" answer.
	MigrateOnStart bool `env:"LIFEOS_MIGRATE_ON_START" envDefault:"false"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		cfg.DataDir = filepath.Join(home, ".lifeos")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	cfg.DataDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.RemoteBackend {
	case BackendNone:
		// Local-only operation; no remote settings needed.
	case BackendAPI:
		if c.APIBaseURL == "" {
			return fmt.Errorf("LIFEOS_API_URL is required when the api backend is enabled")
		}

		if c.APIToken == "" {
			return fmt.Errorf("LIFEOS_API_TOKEN is required when the api backend is enabled")
		}
	case BackendS3:
		if c.S3Endpoint == "" {
			return fmt.Errorf("LIFEOS_S3_ENDPOINT is required when the s3 backend is enabled")
		}

		if c.S3Bucket == "" {
			return fmt.Errorf("LIFEOS_S3_BUCKET is required when the s3 backend is enabled")
		}

		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("LIFEOS_S3_ACCESS_KEY and LIFEOS_S3_SECRET_KEY are required when the s3 backend is enabled")
		}
	default:
		return fmt.Errorf("unknown remote backend %q (expected \"api\", \"s3\", or empty)", c.RemoteBackend)
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("LIFEOS_SYNC_INTERVAL must be positive")
	}

	if c.SaveDebounce <= 0 {
		return fmt.Errorf("LIFEOS_SAVE_DEBOUNCE must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// StatePath returns the path of the local state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.db")
}
