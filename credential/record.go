package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("credential not found")
	// ErrUnavailable wraps backend failures and deadline expiry. Callers must
	// not treat it as a negative answer.
	ErrUnavailable = errors.New("credential store unavailable")
	// ErrInvalidRecord is returned by seeding helpers for records missing an
	// id, username or password hash.
	ErrInvalidRecord = errors.New("invalid credential record")
	// ErrUsernameTaken is returned by Put when another id owns the username.
	ErrUsernameTaken = errors.New("credential username taken")
)

// Record is one stored identity. RefreshHash is the SHA-256 hex digest of
// the single refresh token currently valid for the identity, or empty when
// the identity is logged out.
type Record struct {
	ID           string
	Username     string
	PasswordHash string
	RefreshHash  string
	Roles        []string
}

// Store is the persistence boundary consumed by the session engine.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Record, error)
	FindByID(ctx context.Context, id string) (Record, error)
	// UpdateRefreshHash overwrites the stored hash. An empty hash clears it.
	UpdateRefreshHash(ctx context.Context, id, hash string) error
}

// Swapper is implemented by stores that can replace the refresh hash
// atomically. SwapRefreshHash reports false, with no error, when the stored
// hash no longer equals expected.
type Swapper interface {
	SwapRefreshHash(ctx context.Context, id, expected, next string) (bool, error)
}

// PasswordUpdater is implemented by stores that accept re-hashed passwords.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// NewID returns a fresh lexically sortable record id.
func NewID() string {
	return ulid.Make().String()
}

func validateRecord(rec Record) error {
	switch {
	case strings.TrimSpace(rec.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	case strings.TrimSpace(rec.Username) == "":
		return fmt.Errorf("%w: username is required", ErrInvalidRecord)
	case rec.PasswordHash == "":
		return fmt.Errorf("%w: password hash is required", ErrInvalidRecord)
	}
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Roles = append([]string(nil), rec.Roles...)
	return rec
}
