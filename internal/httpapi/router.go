package httpapi

import (
	"context"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/authz"
	"github.com/MrEthical07/goGuard/gate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation names. Every route is registered under exactly one of them.
const (
	OpHealth       = "health"
	OpLogin        = "auth.login"
	OpRefresh      = "auth.refresh"
	OpLogout       = "auth.logout"
	OpProfile      = "auth.profile"
	OpLastPayment  = "payments.last"
	FeatureDebt    = "obligated-debt"
	RoleLoanSup    = "IL-LM-SUP"
	RoleFinanceMng = "IL-FN-MNG"
)

// Rules returns the access rule of every operation.
func Rules() map[string]authz.Rule {
	return map[string]authz.Rule{
		OpHealth:  {},
		OpLogin:   {},
		OpRefresh: {},
		OpLogout:  {Authenticated: true},
		OpProfile: {Authenticated: true},
		OpLastPayment: {
			RequiredRoles:   []string{RoleLoanSup, RoleFinanceMng},
			RequiredFeature: FeatureDebt,
		},
	}
}

// Service is the engine surface the API needs.
type Service interface {
	gate.Authenticator
	gate.Authorizer
	Login(ctx context.Context, username, password string) (goGuard.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (goGuard.TokenPair, error)
	Logout(ctx context.Context, identityID string) error
}

// Options configures [NewRouter].
type Options struct {
	Logger logr.Logger
	// Registerer receives the request duration histogram. Nil skips
	// registration.
	Registerer prometheus.Registerer
	// SecureCookies marks the refresh cookie Secure.
	SecureCookies bool
}

type api struct {
	svc    Service
	logger logr.Logger
	secure bool
}

// NewRouter builds the HTTP API. Wrong methods and disabled features answer
// with the body of an unknown route.
func NewRouter(svc Service, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	logger = logger.WithName("http")

	catalog, err := authz.NewCatalog(Rules())
	if err != nil {
		return nil, err
	}
	metrics, err := newHTTPMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}

	a := &api{svc: svc, logger: logger, secure: opts.SecureCookies}
	g := gate.New(svc, svc, logger, gate.WithErrorMapper(goGuard.PublicError))
	guard := func(op string) func(http.Handler) http.Handler {
		return g.Require(catalog.MustLookup(op))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(metrics.middleware)
	r.Use(requestLogger(logger))

	// A wrong method answers like a missing route so gated paths are not
	// revealed.
	notFound := func(w http.ResponseWriter, _ *http.Request) {
		gate.WriteError(w, http.StatusNotFound)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.With(guard(OpHealth)).Get("/healthz", a.health)

	r.Route("/auth", func(r chi.Router) {
		r.With(guard(OpLogin)).Post("/login", a.login)
		r.With(guard(OpRefresh)).Post("/refresh", a.refresh)
		r.With(guard(OpLogout)).Post("/logout", a.logout)
		r.With(guard(OpProfile)).Get("/profile", a.profile)
	})

	r.With(guard(OpLastPayment)).Get("/payments/last", a.lastPayment)

	return r, nil
}
