package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/goGuard/authz"
	"github.com/go-logr/logr"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (authz.Identity, error)
}

// Authorizer decides whether an identity satisfies a rule.
type Authorizer interface {
	Authorize(identity *authz.Identity, rule authz.Rule) authz.Decision
}

// ErrorMapper turns an authentication error into a status and public
// message.
type ErrorMapper func(err error) (status int, message string)

// Option configures a [Gate].
type Option func(*Gate)

// WithErrorMapper replaces the default mapping, which answers 401 for
// every authentication error.
func WithErrorMapper(m ErrorMapper) Option {
	return func(g *Gate) {
		if m != nil {
			g.mapError = m
		}
	}
}

// Gate builds per-rule HTTP guards.
type Gate struct {
	authn    Authenticator
	authz    Authorizer
	logger   logr.Logger
	mapError ErrorMapper
}

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by a guard.
func IdentityFromContext(ctx context.Context) (*authz.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authz.Identity)
	return id, ok && id != nil
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *authz.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// New returns a [Gate].
func New(authn Authenticator, authorizer Authorizer, logger logr.Logger, opts ...Option) *Gate {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	g := &Gate{
		authn:  authn,
		authz:  authorizer,
		logger: logger.WithName("gate"),
		mapError: func(error) (int, string) {
			return http.StatusUnauthorized, StatusMessage(http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Require returns middleware enforcing rule.
func (g *Gate) Require(rule authz.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rule.Public() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || g.authn == nil || g.authz == nil {
				WriteError(w, http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				g.reject(w, r, g.authz.Authorize(nil, rule))
				return
			}

			identity, err := g.authn.Authenticate(r.Context(), token)
			if err != nil {
				status, message := g.mapError(err)
				g.logger.V(1).Info("authentication failed",
					"path", r.URL.Path, "status", status, "error", err.Error())
				writeError(w, status, message)
				return
			}

			decision := g.authz.Authorize(&identity, rule)
			if !decision.Allowed {
				g.reject(w, r, decision)
				return
			}

			ctx := WithIdentity(r.Context(), &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, d authz.Decision) {
	status := DecisionStatus(d)
	g.logger.V(1).Info("request rejected", "path", r.URL.Path, "reason", string(d.Reason), "status", status)
	WriteError(w, status)
}

// DecisionStatus maps a denied decision to its HTTP status.
func DecisionStatus(d authz.Decision) int {
	switch {
	case d.Allowed:
		return http.StatusOK
	case d.Reason == authz.ReasonUnauthenticated:
		return http.StatusUnauthorized
	case d.Reason == authz.ReasonFeatureDisabled:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// StatusMessage returns the public message used for status.
func StatusMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not found"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return strings.ToLower(http.StatusText(status))
	}
}

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// WriteError writes the JSON error body shared by guards and the router.
func WriteError(w http.ResponseWriter, status int) {
	writeError(w, status, StatusMessage(status))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{StatusCode: status, Message: message})
}
