package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login limiter tuning parameters.
type Config struct {
	// Prefix namespaces the counter keys. Empty means "gg".
	Prefix string
	// MaxAttempts is the number of failures allowed inside one window.
	MaxAttempts int
	// Window is the fixed window length, started by the first failure.
	Window time.Duration
	// EnableIPThrottle adds a second counter per client address.
	EnableIPThrottle bool
}

// KEYS[1] counter; ARGV[1] window in milliseconds.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var incrementLua = redis.NewScript(incrementScript)

// Limiter counts failed logins per username and, optionally, per client
// address in Redis fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gg"
	}
	return &Limiter{redis: client, config: cfg}
}

func (l *Limiter) userKey(username string) string {
	return l.config.Prefix + ":rl:u:" + username
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":rl:ip:" + ip
}

func (l *Limiter) keys(username, ip string) []string {
	keys := []string{l.userKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

// CheckLogin fails with [ErrRateLimited] when username or ip has used up
// its failure budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	for _, key := range l.keys(username, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records one failed login.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	window := l.config.Window.Milliseconds()
	if window <= 0 {
		window = 1
	}
	for _, key := range l.keys(username, ip) {
		if err := incrementLua.Run(ctx, l.redis, []string{key}, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// ResetLogin clears the counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, username, ip string) error {
	if err := l.redis.Del(ctx, l.keys(username, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RetryAfter reports how long until the username window closes. Zero means
// no window is open.
func (l *Limiter) RetryAfter(ctx context.Context, username string) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, l.userKey(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
