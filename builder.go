package goGuard

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/authz"
	"github.com/MrEthical07/goGuard/credential"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/token"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it during initialization and
// call [Builder.Build] once.
type Builder struct {
	config Config
	store  credential.Store
	redis  redis.UniversalClient
	logger logr.Logger

	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: logr.Discard(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore sets the store used for lookups and refresh hash
// updates. Calls are bounded by Config.Store.Timeout.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithRedis enables the failed-login limiter. When no credential store is
// set, Build also uses client as a [credential.RedisStore].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for operational messages. Secrets, tokens
// and passwords are never logged.
func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination for audit events. It has effect only
// when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the token clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil && b.redis != nil {
		store = credential.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrConfig)
	}

	logger := b.logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	logger = logger.WithName("goguard")

	// -------- TOKENS --------
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           b.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	engine := &Engine{
		config:  cfg,
		codec:   codec,
		hasher:  hasher,
		logger:  logger,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- STORE --------
	engine.store = credential.WithTimeout(store, cfg.Store.Timeout)
	if sw, ok := engine.store.(credential.Swapper); ok {
		engine.swapper = sw
	}
	if pu, ok := engine.store.(credential.PasswordUpdater); ok {
		engine.pwUpdater = pu
	}

	// -------- AUTHORIZATION --------
	az, err := authz.NewEngine(authz.Config{
		EnabledFeatures: cfg.Authorization.EnabledFeatures,
		OverrideRole:    cfg.Authorization.OverrideRole,
	}, logger, engine.auditDecision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	engine.authz = az

	// -------- LOGIN LIMITER --------
	if b.redis != nil && cfg.Security.MaxLoginAttempts > 0 {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Store.RedisPrefix,
			MaxAttempts:      cfg.Security.MaxLoginAttempts,
			Window:           cfg.Security.LoginCooldownDuration,
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
		})
	}

	b.built = true

	return engine, nil
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
