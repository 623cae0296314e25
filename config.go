package goGuard

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

// Config is the complete engine configuration. Build it once, usually from
// [DefaultConfig], and treat it as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Authorization AuthorizationConfig
	Password      PasswordConfig
	Store         StoreConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the token secrets and lifetimes. Access and refresh
// tokens must use different secrets.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
AUTHORIZATION CONFIG
====================================
*/

// AuthorizationConfig lists enabled feature flags and the optional
// override role.
type AuthorizationConfig struct {
	EnabledFeatures []string
	OverrideRole    string
}

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

// StoreConfig bounds credential store calls.
type StoreConfig struct {
	Timeout     time.Duration
	RedisPrefix string
}

// SecurityConfig controls the failed-login limiter. It is active only when
// the builder also receives a Redis client.
type SecurityConfig struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	EnableIPThrottle      bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "goguard",
			Leeway:     0,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		Store: StoreConfig{
			Timeout:     2 * time.Second,
			RedisPrefix: "gg",
		},
		Security: SecurityConfig{
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = bytes.Clone(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = bytes.Clone(cfg.JWT.RefreshSecret)
	out.Authorization.EnabledFeatures = append([]string(nil), cfg.Authorization.EnabledFeatures...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, wrapped in [ErrConfig].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("JWT AccessSecret is required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("JWT RefreshSecret is required")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	// Expiry claims have second precision.
	if c.JWT.RefreshTTL < c.JWT.AccessTTL+time.Second {
		return errors.New("JWT RefreshTTL must exceed AccessTTL by at least 1s")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Authorization
	for _, name := range c.Authorization.EnabledFeatures {
		if strings.TrimSpace(name) == "" {
			return errors.New("Authorization EnabledFeatures must not contain empty names")
		}
	}
	if c.Authorization.OverrideRole != "" && strings.TrimSpace(c.Authorization.OverrideRole) == "" {
		return errors.New("Authorization OverrideRole must not be blank")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when MaxLoginAttempts is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
