package goGuard

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing access secret",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = nil
			},
			wantValid: false,
		},
		{
			name: "missing refresh secret",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = nil
			},
			wantValid: false,
		},
		{
			name: "equal secrets",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...)
			},
			wantValid: false,
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "refresh ttl one second above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL + time.Second
			},
			wantValid: true,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "empty feature name",
			mutate: func(c *Config) {
				c.Authorization.EnabledFeatures = []string{"obligated-debt", " "}
			},
			wantValid: false,
		},
		{
			name: "blank override role",
			mutate: func(c *Config) {
				c.Authorization.OverrideRole = "  "
			},
			wantValid: false,
		},
		{
			name: "no override role",
			mutate: func(c *Config) {
				c.Authorization.OverrideRole = ""
			},
			wantValid: true,
		},
		{
			name: "weak argon memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "zero store timeout",
			mutate: func(c *Config) {
				c.Store.Timeout = 0
			},
			wantValid: false,
		},
		{
			name: "limiter without window",
			mutate: func(c *Config) {
				c.Security.MaxLoginAttempts = 3
				c.Security.LoginCooldownDuration = 0
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("expected ErrConfig, got %v", err)
				}
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected default config without secrets to fail, got %v", err)
	}
}

func TestWithConfigClonesSecrets(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.AccessSecret[0] = 'X'
	cfg.Authorization.EnabledFeatures[0] = "mutated"

	if b.config.JWT.AccessSecret[0] == 'X' {
		t.Fatal("builder config shares secret backing array")
	}
	if b.config.Authorization.EnabledFeatures[0] == "mutated" {
		t.Fatal("builder config shares feature slice")
	}
}
