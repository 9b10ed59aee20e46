package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Postgres connection string. Empty selects the in-memory store,
	// which is only suitable for local development.
	DatabaseURL string

	// HTTP listen port
	Port string

	// Log level ( debug, info, warn, error )
	LogLevel string

	// Base URL embedded in scannable code payloads
	VerificationBaseURL string

	// Stellar anchoring. Disabled means batches anchor against the
	// deterministic local client instead of Horizon.
	AnchorEnabled     bool
	HorizonURL        string
	NetworkPassphrase string
	AnchorSeed        string

	// Signing key seed ( 32-byte hex ). Empty generates an ephemeral key.
	SigningSeed string

	// Certificate authority label and validity window for issued signatures
	CAProvider   string
	CertValidity time.Duration

	// Buffer size for the best-effort audit recorder
	AuditBufferSize int
}

// Load reads the configuration from environment variables, applying defaults
// where a value is optional
func Load() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		VerificationBaseURL: getEnv("VERIFICATION_BASE_URL", "https://pharmatrace.example.com"),

		AnchorEnabled:     getEnvBool("ANCHOR_ENABLED", false),
		HorizonURL:        getEnv("HORIZON_URL", "https://horizon-testnet.stellar.org"),
		NetworkPassphrase: getEnv("NETWORK_PASSPHRASE", "Test SDF Network ; September 2015"),
		AnchorSeed:        os.Getenv("ANCHOR_SEED"),

		SigningSeed: os.Getenv("SIGNING_SEED"),

		CAProvider:   getEnv("CA_PROVIDER", "pharmatrace-internal-ca"),
		CertValidity: getEnvDuration("CERT_VALIDITY", 365*24*time.Hour),

		AuditBufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 256),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.VerificationBaseURL == "" {
		return fmt.Errorf("VERIFICATION_BASE_URL is required")
	}
	if c.AnchorEnabled {
		if c.HorizonURL == "" {
			return fmt.Errorf("HORIZON_URL is required when anchoring is enabled")
		}
		if c.NetworkPassphrase == "" {
			return fmt.Errorf("NETWORK_PASSPHRASE is required when anchoring is enabled")
		}
		if c.AnchorSeed == "" {
			return fmt.Errorf("ANCHOR_SEED is required when anchoring is enabled")
		}
	}
	if c.AuditBufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
