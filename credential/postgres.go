package credential

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore keeps records in <schema>.credentials. The pool is owned by
// the caller and is never closed by the store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore returns a store over pool. An empty schema means
// "goguard".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("credential: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "goguard"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("credential: invalid schema identifier %q", schema)
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "credentials"}.Sanitize()
}

// Migrate creates the schema and table when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := pgx.Identifier{s.schema}.Sanitize()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + s.table() + ` (
		   id            text PRIMARY KEY,
		   username      text NOT NULL UNIQUE,
		   password_hash text NOT NULL,
		   refresh_hash  text NOT NULL DEFAULT '',
		   roles         text[] NOT NULL DEFAULT '{}',
		   updated_at    timestamptz NOT NULL DEFAULT now()
		 )`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Put inserts or replaces rec. A username owned by another id fails with
// [ErrUsernameTaken].
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	roles := rec.Roles
	if roles == nil {
		roles = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, username, password_hash, refresh_hash, roles)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   username = EXCLUDED.username,
		   password_hash = EXCLUDED.password_hash,
		   refresh_hash = EXCLUDED.refresh_hash,
		   roles = EXCLUDED.roles,
		   updated_at = now()`,
		rec.ID, rec.Username, rec.PasswordHash, rec.RefreshHash, roles,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrUsernameTaken
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FindByUsername implements [Store].
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Record, error) {
	return s.findOne(ctx, `username = $1`, username)
}

// FindByID implements [Store].
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Record, error) {
	return s.findOne(ctx, `id = $1`, id)
}

// UpdateRefreshHash implements [Store].
func (s *PostgresStore) UpdateRefreshHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, `refresh_hash = $2`, id, hash)
}

// UpdatePasswordHash implements [PasswordUpdater].
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, `password_hash = $2`, id, hash)
}

// SwapRefreshHash implements [Swapper]. The conditional UPDATE is atomic
// under READ COMMITTED: a concurrent swap re-evaluates the predicate after
// the first commits and matches no row.
func (s *PostgresStore) SwapRefreshHash(ctx context.Context, id, expected, next string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET refresh_hash = $3, updated_at = now()
		 WHERE id = $1 AND refresh_hash = $2`,
		id, expected, next,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, refresh_hash, roles
		   FROM `+s.table()+` WHERE `+where,
		arg,
	).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.RefreshHash, &rec.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresStore) update(ctx context.Context, set, id, value string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET `+set+`, updated_at = now() WHERE id = $1`,
		id, value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
