package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	fieldUsername     = "username"
	fieldPasswordHash = "password_hash"
	fieldRefreshHash  = "refresh_hash"
	fieldRoles        = "roles"
)

const (
	swapStatusNotFound int64 = -1
	swapStatusMismatch int64 = 0
	swapStatusSwapped  int64 = 1
)

const putStatusTaken int64 = 0

// KEYS[1] record hash; KEYS[2] username index; ARGV[1] id; ARGV[2]
// username; ARGV[3] password hash; ARGV[4] refresh hash; ARGV[5] roles;
// ARGV[6] username index prefix.
const putRecordScript = `
local owner = redis.call("GET", KEYS[2])
if owner and owner ~= ARGV[1] then
  return 0
end
local previous = redis.call("HGET", KEYS[1], "username")
if previous and previous ~= ARGV[2] then
  redis.call("DEL", ARGV[6] .. previous)
end
redis.call("HSET", KEYS[1],
  "username", ARGV[2],
  "password_hash", ARGV[3],
  "refresh_hash", ARGV[4],
  "roles", ARGV[5])
redis.call("SET", KEYS[2], ARGV[1])
return 1
`

var putRecordLua = redis.NewScript(putRecordScript)

// KEYS[1] record hash; ARGV[1] field; ARGV[2] value.
const setFieldScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`

var setFieldLua = redis.NewScript(setFieldScript)

// KEYS[1] record hash; ARGV[1] expected hash; ARGV[2] next hash.
const swapRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local current = redis.call("HGET", KEYS[1], "refresh_hash")
if not current then
  current = ""
end
if current ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2])
return 1
`

var swapRefreshLua = redis.NewScript(swapRefreshScript)

// RedisStore keeps each record in a hash at <prefix>:cred:<id> and indexes
// usernames at <prefix>:user:<username>. Refresh hash swaps run as a Lua
// script so concurrent processes observe a single winner.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store using client. An empty prefix means "gg".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gg"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + ":cred:" + id
}

func (s *RedisStore) usernameKey(username string) string {
	return s.prefix + ":user:" + username
}

// Put inserts or replaces rec together with its username index entry. A
// rename drops the old index entry; a username owned by another id fails
// with [ErrUsernameTaken].
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return err
	}

	status, err := putRecordLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.ID), s.usernameKey(rec.Username)},
		rec.ID, rec.Username, rec.PasswordHash, rec.RefreshHash, string(roles), s.usernameKey(""),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status == putStatusTaken {
		return ErrUsernameTaken
	}
	return nil
}

// FindByUsername implements [Store].
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (Record, error) {
	id, err := s.redis.Get(ctx, s.usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// FindByID implements [Store].
func (s *RedisStore) FindByID(ctx context.Context, id string) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{
		ID:           id,
		Username:     fields[fieldUsername],
		PasswordHash: fields[fieldPasswordHash],
		RefreshHash:  fields[fieldRefreshHash],
	}
	if raw := fields[fieldRoles]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Roles); err != nil {
			return Record{}, fmt.Errorf("credential: corrupt roles for %s: %w", id, err)
		}
	}
	return rec, nil
}

// UpdateRefreshHash implements [Store].
func (s *RedisStore) UpdateRefreshHash(ctx context.Context, id, hash string) error {
	return s.setField(ctx, id, fieldRefreshHash, hash)
}

// UpdatePasswordHash implements [PasswordUpdater].
func (s *RedisStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.setField(ctx, id, fieldPasswordHash, hash)
}

// SwapRefreshHash implements [Swapper].
func (s *RedisStore) SwapRefreshHash(ctx context.Context, id, expected, next string) (bool, error) {
	status, err := swapRefreshLua.Run(ctx, s.redis, []string{s.recordKey(id)}, expected, next).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case swapStatusSwapped:
		return true, nil
	case swapStatusMismatch:
		return false, nil
	case swapStatusNotFound:
		return false, ErrNotFound
	default:
		return false, fmt.Errorf("credential: unexpected swap status %d", status)
	}
}

func (s *RedisStore) setField(ctx context.Context, id, field, value string) error {
	status, err := setFieldLua.Run(ctx, s.redis, []string{s.recordKey(id)}, field, value).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status == swapStatusNotFound {
		return ErrNotFound
	}
	return nil
}
