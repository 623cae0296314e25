package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/httpapi"
	"github.com/MrEthical07/goGuard/internal/settings"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	*rootOptions
	configPath string
	devRedis   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth API and the metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default config/config.<GOGUARD_ENV>.yaml)")
	cmd.Flags().BoolVar(&opts.devRedis, "dev-redis", false, "start an in-process Redis for the limiter and the redis driver")
	return cmd
}

// backend holds the credential store and the resources behind it.
type backend struct {
	store credential.Store
	redis redis.UniversalClient
	put   func(context.Context, credential.Record) error

	closers []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServe(ctx context.Context, opts *serveOptions) error {
	logger := opts.logger()

	path := opts.configPath
	if path == "" {
		path = settings.Path(".")
	}
	cfg, err := settings.Load(path)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", path, "driver", cfg.Store.Driver)

	be, err := openBackend(ctx, cfg, opts.devRedis, logger)
	if err != nil {
		return err
	}
	defer be.close()

	builder := goGuard.New().
		WithConfig(cfg.EngineConfig()).
		WithCredentialStore(be.store).
		WithLogger(logger)
	if be.redis != nil {
		builder = builder.WithRedis(be.redis)
	}
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goGuard.NewLogSink(logger.WithName("audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := seedUsers(ctx, cfg, engine.HashPassword, be, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	handler, err := httpapi.NewRouter(engine, httpapi.Options{
		Logger:        logger,
		Registerer:    reg,
		SecureCookies: cfg.Server.SecureCookies,
	})
	if err != nil {
		return err
	}

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promexport.Handler(reg))
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		logger.Info("shutdown complete")
		return errors.Join(errs...)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg settings.Settings, devRedis bool, logger logr.Logger) (*backend, error) {
	be := &backend{}

	redisAddr := cfg.Store.RedisAddr
	if devRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start dev redis: %w", err)
		}
		be.closers = append(be.closers, mr.Close)
		redisAddr = mr.Addr()
		logger.Info("using in-process redis", "addr", redisAddr)
	}
	if redisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		be.closers = append(be.closers, func() { _ = client.Close() })
		be.redis = client
	}

	switch cfg.Store.Driver {
	case settings.DriverMemory:
		mem := credential.NewMemoryStore()
		be.store = mem
		be.put = func(_ context.Context, rec credential.Record) error { return mem.Put(rec) }

	case settings.DriverRedis:
		if be.redis == nil {
			be.close()
			return nil, errors.New("redis driver requires store.redis_addr or --dev-redis")
		}
		rs := credential.NewRedisStore(be.redis, cfg.Store.RedisPrefix)
		be.store = rs
		be.put = rs.Put

	case settings.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			be.close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		be.closers = append(be.closers, pool.Close)

		ps, err := credential.NewPostgresStore(pool, cfg.Store.PostgresSchema)
		if err != nil {
			be.close()
			return nil, err
		}
		if err := ps.Migrate(ctx); err != nil {
			be.close()
			return nil, err
		}
		be.store = ps
		be.put = ps.Put

	default:
		be.close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return be, nil
}

// seedUsers inserts configured users that are not stored yet. Existing
// records are left alone so restarts keep refresh hashes and ids.
func seedUsers(ctx context.Context, cfg settings.Settings, hash func(string) (string, error), be *backend, logger logr.Logger) error {
	pending := cfg
	pending.Users = nil
	for _, u := range cfg.Users {
		_, err := be.store.FindByUsername(ctx, u.Username)
		switch {
		case err == nil:
			logger.V(1).Info("seed user already stored", "user", u.Username)
		case errors.Is(err, credential.ErrNotFound):
			pending.Users = append(pending.Users, u)
		default:
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}

	records, err := pending.SeedRecords(hash)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := be.put(ctx, rec); err != nil {
			return fmt.Errorf("seed user %q: %w", rec.Username, err)
		}
	}
	return nil
}
