package credential

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

type timeoutSwapStore struct {
	timeoutStore
	swapper Swapper
}

// WithTimeout bounds every call on next by d. A call that runs past its
// deadline, or whose context is cancelled, fails with [ErrUnavailable].
//
// The returned store implements [Swapper] whenever next does. It always
// implements [PasswordUpdater]; when next does not, UpdatePasswordHash
// returns errors.ErrUnsupported.
func WithTimeout(next Store, d time.Duration) Store {
	base := timeoutStore{next: next, timeout: d}
	if sw, ok := next.(Swapper); ok {
		return &timeoutSwapStore{timeoutStore: base, swapper: sw}
	}
	return &base
}

func (s *timeoutStore) FindByUsername(ctx context.Context, username string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.next.FindByUsername(ctx, username)
	return rec, unavailable(err)
}

func (s *timeoutStore) FindByID(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.next.FindByID(ctx, id)
	return rec, unavailable(err)
}

func (s *timeoutStore) UpdateRefreshHash(ctx context.Context, id, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(s.next.UpdateRefreshHash(ctx, id, hash))
}

func (s *timeoutStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	pu, ok := s.next.(PasswordUpdater)
	if !ok {
		return errors.ErrUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return unavailable(pu.UpdatePasswordHash(ctx, id, hash))
}

func (s *timeoutSwapStore) SwapRefreshHash(ctx context.Context, id, expected, next string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.swapper.SwapRefreshHash(ctx, id, expected, next)
	return ok, unavailable(err)
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
