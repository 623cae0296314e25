package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens. Each kind is signed
// with its own secret.
type Kind string

const (
	// KindAccess marks short-lived bearer tokens presented on every call.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens exchanged for a new pair.
	KindRefresh Kind = "refresh"
)

const maxLeeway = 2 * time.Minute

// Config holds the signing material and validation options for a [Codec].
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Subject is the identity a token is issued for.
type Subject struct {
	ID       string
	Username string
	Roles    []string
}

// Token is an issued or verified token. Tokens are values: they are never
// mutated after issuance.
type Token struct {
	Value     string
	ID        string
	Subject   string
	Username  string
	Roles     []string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the JWT payload shared by both token kinds.
type Claims struct {
	Username string   `json:"usr,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Kind     Kind     `json:"kind"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready [Codec]. Missing or identical
// secrets fail with [ErrConfig].
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, fmt.Errorf("%w: access secret is required", ErrConfig)
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: refresh secret is required", ErrConfig)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("%w: invalid leeway", ErrConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.AccessSecret = bytes.Clone(cfg.AccessSecret)
	cfg.RefreshSecret = bytes.Clone(cfg.RefreshSecret)

	return &Codec{config: cfg}, nil
}

// Issue signs a token of the given kind for subject, expiring ttl from now.
// Roles are embedded in access tokens only; refresh tokens re-read them
// from the credential store.
func (c *Codec) Issue(subject Subject, kind Kind, ttl time.Duration) (Token, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return Token{}, err
	}
	if ttl <= 0 {
		return Token{}, errors.New("token ttl must be > 0")
	}
	if strings.TrimSpace(subject.ID) == "" {
		return Token{}, errors.New("token subject is required")
	}

	now := c.config.Now()
	claims := Claims{
		Username: subject.Username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.ID,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if kind == KindAccess && len(subject.Roles) > 0 {
		claims.Roles = append([]string(nil), subject.Roles...)
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, err
	}

	return claimsToToken(value, &claims), nil
}

// Verify checks the signature, expiry and kind of value.
//
// Failures are reported as [ErrExpiredToken], [ErrInvalidSignature] or
// [ErrMalformedToken]. A token of the other kind fails signature
// verification because each kind has its own secret.
func (c *Codec) Verify(value string, kind Kind) (Token, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return Token{}, err
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(c.config.Now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return Token{}, classify(err)
	}
	if !parsed.Valid {
		return Token{}, ErrMalformedToken
	}
	if claims.Kind != kind {
		return Token{}, fmt.Errorf("%w: kind mismatch", ErrMalformedToken)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Token{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	return claimsToToken(value, claims), nil
}

func (c *Codec) secret(kind Kind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.config.AccessSecret, nil
	case KindRefresh:
		return c.config.RefreshSecret, nil
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrConfig, kind)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func claimsToToken(value string, claims *Claims) Token {
	tok := Token{
		Value:    value,
		ID:       claims.ID,
		Subject:  claims.Subject,
		Username: claims.Username,
		Roles:    append([]string(nil), claims.Roles...),
		Kind:     claims.Kind,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok
}
