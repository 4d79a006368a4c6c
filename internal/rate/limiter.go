package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableNonceThrottle bool
	EnableAuthThrottle  bool
	MaxNonceRequests    int
	NonceWindow         time.Duration
	MaxAuthAttempts     int
	AuthWindow          time.Duration
}

// Limiter enforces per-IP budgets for nonce issuance and proof
// submission using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckNonce counts one nonce request for ip and returns ErrRateLimited
// once the window budget is spent.
func (l *Limiter) CheckNonce(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableNonceThrottle || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, nonceKey(ip), l.config.NonceWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxNonceRequests) {
		return ErrRateLimited
	}

	return nil
}

// CheckAuthenticate checks whether ip still has authentication budget left
// without consuming any.
func (l *Limiter) CheckAuthenticate(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableAuthThrottle || ip == "" {
		return nil
	}
	return l.checkCounter(ctx, authKey(ip), l.config.MaxAuthAttempts)
}

// IncrementAuthenticate records a rejected proof submission for ip.
func (l *Limiter) IncrementAuthenticate(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableAuthThrottle || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, authKey(ip), l.config.AuthWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAuthAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ResetAuthenticate clears the rejection counter after a successful login.
func (l *Limiter) ResetAuthenticate(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableAuthThrottle || ip == "" {
		return nil
	}

	if err := l.redis.Del(ctx, authKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// GetAuthAttempts returns the current rejection counter for ip.
func (l *Limiter) GetAuthAttempts(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, authKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// windowIncrScript counts a hit and starts the window in the same step. A
// key left without a TTL gets one on its next hit.
const windowIncrScript = `
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var windowIncrLua = redis.NewScript(windowIncrScript)

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := windowIncrLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func nonceKey(ip string) string {
	return "azr:n:" + ip
}

func authKey(ip string) string {
	return "azr:a:" + ip
}
