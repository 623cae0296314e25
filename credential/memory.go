package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It implements [Store],
// [Swapper] and [PasswordUpdater] and is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]Record
	byUsername map[string]string
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Record),
		byUsername: make(map[string]string),
	}
}

// Put inserts or replaces rec. Replacing a record under a new username
// drops the old username index entry. A username owned by another id
// fails with [ErrUsernameTaken].
func (s *MemoryStore) Put(rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byUsername[rec.Username]; ok && owner != rec.ID {
		return ErrUsernameTaken
	}
	if prev, ok := s.byID[rec.ID]; ok && prev.Username != rec.Username {
		delete(s.byUsername, prev.Username)
	}
	s.byID[rec.ID] = cloneRecord(rec)
	s.byUsername[rec.Username] = rec.ID
	return nil
}

// FindByUsername implements [Store].
func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

// FindByID implements [Store].
func (s *MemoryStore) FindByID(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateRefreshHash implements [Store].
func (s *MemoryStore) UpdateRefreshHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.RefreshHash = hash
	s.byID[id] = rec
	return nil
}

// SwapRefreshHash implements [Swapper].
func (s *MemoryStore) SwapRefreshHash(ctx context.Context, id, expected, next string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.RefreshHash != expected {
		return false, nil
	}
	rec.RefreshHash = next
	s.byID[id] = rec
	return true, nil
}

// UpdatePasswordHash implements [PasswordUpdater].
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.PasswordHash = hash
	s.byID[id] = rec
	return nil
}
