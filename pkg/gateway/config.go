// Copyright 2024-2026 Aiku AI

package gateway

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the gateway listener configuration. Values load from an
// optional YAML file, then environment variables, then flags; later sources
// win.
type Config struct {
	Host string `yaml:"host" env:"SLIRCD_HOST"`
	Port int    `yaml:"port" env:"SLIRCD_PORT"`

	TLSCert string `yaml:"tls_cert" env:"SLIRCD_TLS_CERT"`
	TLSKey  string `yaml:"tls_key" env:"SLIRCD_TLS_KEY"`
	// Insecure disables TLS entirely. Explicit by design: an empty cert
	// path alone does not silently downgrade the listener.
	Insecure bool `yaml:"insecure" env:"SLIRCD_INSECURE"`

	// MaxLineLen is the maximum IRC line length advertised to clients and
	// enforced by the framing scanner.
	MaxLineLen int `yaml:"max_line_len" env:"SLIRCD_MAX_LINE_LEN"`

	Debug bool `yaml:"debug" env:"SLIRCD_DEBUG"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       6697,
		MaxLineLen: 1024,
	}
}

// LoadConfig merges defaults, the YAML file at path (skipped when path is
// empty), and environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	// Validation is the caller's step, after any flag overrides land.
	return cfg, nil
}

// Validate rejects configurations that cannot serve.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if !c.Insecure && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("config: tls_cert and tls_key are required unless insecure is set")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
