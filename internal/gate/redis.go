package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyDNE      = -2
	keyNoExpire = -1
)

type redisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

var _ Strategy = (*redisLimiter)(nil)

// NewRedisLimiter creates a fixed window rate limiter backed by Redis, for
// deployments that run more than one proxy replica behind one limit.
func NewRedisLimiter(client *redis.Client, now func() time.Time) Strategy {
	if now == nil {
		now = time.Now
	}
	return &redisLimiter{client: client, now: now}
}

func (l *redisLimiter) Execute(ctx context.Context, r *Request) (*Result, error) {
	pipe := l.client.Pipeline()
	getCmd := pipe.Get(ctx, r.Key)
	ttlCmd := pipe.TTL(ctx, r.Key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rate limit pipeline for key %q: %w", r.Key, err)
	}

	var ttl time.Duration
	if d, err := ttlCmd.Result(); err != nil || d == keyDNE || d == keyNoExpire {
		ttl = r.Window
	} else {
		ttl = d
	}
	expiresAt := l.now().Add(ttl)

	if count, err := getCmd.Uint64(); err == nil && count >= r.Limit {
		return &Result{State: Deny, TotalRequests: count, ExpiresAt: expiresAt}, nil
	}

	count, err := l.client.Incr(ctx, r.Key).Uint64()
	if err != nil {
		return nil, fmt.Errorf("rate limit incr for key %q: %w", r.Key, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, r.Key, r.Window).Err(); err != nil {
			return nil, fmt.Errorf("rate limit expire for key %q: %w", r.Key, err)
		}
	}
	if count > r.Limit {
		return &Result{State: Deny, TotalRequests: count, ExpiresAt: expiresAt}, nil
	}
	return &Result{State: Allow, TotalRequests: count, ExpiresAt: expiresAt}, nil
}
