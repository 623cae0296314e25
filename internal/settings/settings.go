package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/credential"
	"gopkg.in/yaml.v3"
)

// EnvName selects config/config.<env>.yaml.
const EnvName = "GOGUARD_ENV"

const defaultEnv = "dev"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Settings is the service configuration read from YAML.
type Settings struct {
	Server        Server        `yaml:"server"`
	JWT           JWT           `yaml:"jwt"`
	Authorization Authorization `yaml:"authorization"`
	Password      Password      `yaml:"password"`
	Store         Store         `yaml:"store"`
	Security      Security      `yaml:"security"`
	Audit         Audit         `yaml:"audit"`
	Metrics       Metrics       `yaml:"metrics"`
	Users         []User        `yaml:"users"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	SecureCookies     bool          `yaml:"secure_cookies"`
}

type JWT struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

type Authorization struct {
	EnabledFeatures []string `yaml:"enabled_features"`
	OverrideRole    string   `yaml:"override_role"`
}

type Password struct {
	Memory         uint32 `yaml:"memory_kib"`
	Time           uint32 `yaml:"iterations"`
	Parallelism    uint8  `yaml:"parallelism"`
	UpgradeOnLogin *bool  `yaml:"upgrade_on_login"`
}

type Store struct {
	Driver         string        `yaml:"driver"`
	Timeout        time.Duration `yaml:"timeout"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	PostgresURL    string        `yaml:"postgres_url"`
	PostgresSchema string        `yaml:"postgres_schema"`
}

type Security struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginCooldown    time.Duration `yaml:"login_cooldown"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
}

type Audit struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

type Metrics struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

// User is a credential record seeded at startup. Exactly one of Password
// and PasswordHash is set; Password is meant for local development only.
type User struct {
	ID           string   `yaml:"id"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

// Path returns config/config.<env>.yaml under dir, with env taken from
// GOGUARD_ENV.
func Path(dir string) string {
	env := strings.TrimSpace(os.Getenv(EnvName))
	if env == "" {
		env = defaultEnv
	}
	return filepath.Join(dir, "config", "config."+env+".yaml")
}

// Load reads path, applies GOGUARD_* environment overrides and defaults,
// and validates the result.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML data and applies overrides from lookup. Unknown keys
// are rejected.
func Parse(data []byte, lookup func(string) (string, bool)) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}

	if err := s.applyEnv(lookup); err != nil {
		return Settings{}, err
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}

	strs := map[string]*string{
		"GOGUARD_ADDR":            &s.Server.Addr,
		"GOGUARD_METRICS_ADDR":    &s.Server.MetricsAddr,
		"GOGUARD_ACCESS_SECRET":   &s.JWT.AccessSecret,
		"GOGUARD_REFRESH_SECRET":  &s.JWT.RefreshSecret,
		"GOGUARD_OVERRIDE_ROLE":   &s.Authorization.OverrideRole,
		"GOGUARD_STORE_DRIVER":    &s.Store.Driver,
		"GOGUARD_REDIS_ADDR":      &s.Store.RedisAddr,
		"GOGUARD_DATABASE_URL":    &s.Store.PostgresURL,
		"GOGUARD_DATABASE_SCHEMA": &s.Store.PostgresSchema,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("GOGUARD_ENABLED_FEATURES"); ok {
		s.Authorization.EnabledFeatures = splitList(v)
	}

	if v, ok := lookup("GOGUARD_MAX_LOGIN_ATTEMPTS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return fmt.Errorf("GOGUARD_MAX_LOGIN_ATTEMPTS: invalid value %q", v)
		}
		s.Security.MaxLoginAttempts = n
	}

	durations := map[string]*time.Duration{
		"GOGUARD_ACCESS_TTL":    &s.JWT.AccessTTL,
		"GOGUARD_REFRESH_TTL":   &s.JWT.RefreshTTL,
		"GOGUARD_STORE_TIMEOUT": &s.Store.Timeout,
	}
	for name, dst := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	return nil
}

func (s *Settings) applyDefaults() {
	defaults := goGuard.DefaultConfig()

	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.Server.ReadHeaderTimeout == 0 {
		s.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if s.Server.ShutdownTimeout == 0 {
		s.Server.ShutdownTimeout = 10 * time.Second
	}
	if s.JWT.AccessTTL == 0 {
		s.JWT.AccessTTL = defaults.JWT.AccessTTL
	}
	if s.JWT.RefreshTTL == 0 {
		s.JWT.RefreshTTL = defaults.JWT.RefreshTTL
	}
	if s.JWT.Issuer == "" {
		s.JWT.Issuer = defaults.JWT.Issuer
	}
	if s.Password.Memory == 0 {
		s.Password.Memory = defaults.Password.Memory
	}
	if s.Password.Time == 0 {
		s.Password.Time = defaults.Password.Time
	}
	if s.Password.Parallelism == 0 {
		s.Password.Parallelism = defaults.Password.Parallelism
	}
	if s.Store.Driver == "" {
		s.Store.Driver = DriverMemory
	}
	if s.Store.Timeout == 0 {
		s.Store.Timeout = defaults.Store.Timeout
	}
	if s.Store.RedisPrefix == "" {
		s.Store.RedisPrefix = defaults.Store.RedisPrefix
	}
	if s.Security.MaxLoginAttempts > 0 && s.Security.LoginCooldown == 0 {
		s.Security.LoginCooldown = defaults.Security.LoginCooldownDuration
	}
	if s.Audit.BufferSize == 0 {
		s.Audit.BufferSize = defaults.Audit.BufferSize
	}
}

// Validate checks the settings that the engine config does not cover.
func (s Settings) Validate() error {
	switch s.Store.Driver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", s.Store.Driver)
	}
	if s.Store.Driver == DriverPostgres && s.Store.PostgresURL == "" {
		return errors.New("store.postgres_url is required for the postgres driver")
	}
	if s.Server.MetricsAddr != "" && s.Server.MetricsAddr == s.Server.Addr {
		return errors.New("server.metrics_addr must differ from server.addr")
	}

	seen := make(map[string]struct{}, len(s.Users))
	for i, u := range s.Users {
		if strings.TrimSpace(u.Username) == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = struct{}{}
		if (u.Password == "") == (u.PasswordHash == "") {
			return fmt.Errorf("users[%d]: set exactly one of password and password_hash", i)
		}
	}

	cfg := s.EngineConfig()
	return cfg.Validate()
}

// EngineConfig maps the settings onto the engine configuration.
func (s Settings) EngineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()

	cfg.JWT.AccessSecret = []byte(s.JWT.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(s.JWT.RefreshSecret)
	cfg.JWT.AccessTTL = s.JWT.AccessTTL
	cfg.JWT.RefreshTTL = s.JWT.RefreshTTL
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.Leeway = s.JWT.Leeway

	cfg.Authorization.EnabledFeatures = append([]string(nil), s.Authorization.EnabledFeatures...)
	cfg.Authorization.OverrideRole = s.Authorization.OverrideRole

	cfg.Password.Memory = s.Password.Memory
	cfg.Password.Time = s.Password.Time
	cfg.Password.Parallelism = s.Password.Parallelism
	if s.Password.UpgradeOnLogin != nil {
		cfg.Password.UpgradeOnLogin = *s.Password.UpgradeOnLogin
	}

	cfg.Store.Timeout = s.Store.Timeout
	cfg.Store.RedisPrefix = s.Store.RedisPrefix

	cfg.Security.MaxLoginAttempts = s.Security.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = s.Security.LoginCooldown
	cfg.Security.EnableIPThrottle = s.Security.EnableIPThrottle

	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.BufferSize = s.Audit.BufferSize

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.EnableLatencyHistograms

	return cfg
}

// SeedRecords converts Users into credential records. hash is applied to
// plaintext passwords; users without an id get a fresh one.
func (s Settings) SeedRecords(hash func(string) (string, error)) ([]credential.Record, error) {
	out := make([]credential.Record, 0, len(s.Users))
	for _, u := range s.Users {
		rec := credential.Record{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Roles:        append([]string(nil), u.Roles...),
		}
		if rec.ID == "" {
			rec.ID = credential.NewID()
		}
		if u.Password != "" {
			h, err := hash(u.Password)
			if err != nil {
				return nil, fmt.Errorf("seed user %q: %w", u.Username, err)
			}
			rec.PasswordHash = h
		}
		out = append(out, rec)
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
