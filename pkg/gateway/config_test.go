// Copyright 2024-2026 Aiku AI

package gateway

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 6697 || cfg.MaxLineLen != 1024 {
		t.Errorf("defaults: got %+v", cfg)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "host: 127.0.0.1\nport: 16667\ninsecure: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 16667 || !cfg.Insecure {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.MaxLineLen != 1024 {
		t.Errorf("unset yaml key clobbered default: got %d", cfg.MaxLineLen)
	}
}

func TestLoadConfigEnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 16667\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SLIRCD_PORT", "26667")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 26667 {
		t.Errorf("Port: got %d, want 26667", cfg.Port)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file did not error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"insecure ok", func(c *Config) { c.Insecure = true }, ""},
		{"tls ok", func(c *Config) { c.TLSCert = "cert.pem"; c.TLSKey = "key.pem" }, ""},
		{"missing key", func(c *Config) { c.TLSCert = "cert.pem" }, "tls_cert and tls_key"},
		{"missing both", func(c *Config) {}, "tls_cert and tls_key"},
		{"bad port", func(c *Config) { c.Insecure = true; c.Port = 0 }, "invalid port"},
		{"port overflow", func(c *Config) { c.Insecure = true; c.Port = 70000 }, "invalid port"},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: got %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate: got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAddr(t *testing.T) {
	t.Parallel()
	cfg := &Config{Host: "127.0.0.1", Port: 6697}
	if got, want := cfg.Addr(), "127.0.0.1:6697"; got != want {
		t.Errorf("Addr: got %q, want %q", got, want)
	}
}
