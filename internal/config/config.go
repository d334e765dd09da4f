package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transport names accepted by the server.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config holds process-wide settings resolved from the environment.
type Config struct {
	Transport       string        `env:"OKTA_MCP_TRANSPORT" envDefault:"stdio"`
	Port            int           `env:"PORT" envDefault:"3000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile         string        `env:"OKTA_MCP_LOG_FILE"`
	CallTimeout     time.Duration `env:"OKTA_MCP_CALL_TIMEOUT" envDefault:"0s"`
	HTTPTimeout     time.Duration `env:"OKTA_HTTP_TIMEOUT" envDefault:"30s"`
	RegistryFile    string        `env:"OKTA_MCP_REGISTRY_FILE"`
	CredentialsFile string        `env:"OKTA_MCP_CREDENTIALS_FILE"`
	OktaDomain      string        `env:"OKTA_DOMAIN"`
	OktaAPIToken    string        `env:"OKTA_API_TOKEN"`
}

// Load reads an optional .env file and decodes the environment. The result
// is normalized but not validated; callers validate once every override
// has been applied.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = DefaultCredentialsFile()
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize folds the transport name to its canonical lower-case form.
func (c *Config) Normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
}

// Validate checks values that cannot be expressed as struct tags.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportSSE:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportStdio, TransportSSE)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout must not be negative")
	}
	return nil
}

// Addr is the listen address for the multi-session HTTP surface.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DefaultCredentialsFile is where the credential store lives when not
// configured explicitly.
func DefaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".okta-mcp", "credentials.yaml")
}
