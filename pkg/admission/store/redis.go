package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix  = "admission:"
	defaultTimeout = 5 * time.Second
)

// Redis is a Store backed by a shared Redis instance.
//
// Counters use INCR with an expiry attached only when the bucket is created
// (EXPIRE NX), so a bucket resets exactly one window after its first request.
// Sliding windows use a sorted set scored by event time in milliseconds;
// members carry a random suffix so two events landing on the same millisecond
// never collide. The prune/count/insert/refresh cycle runs in one MULTI/EXEC
// pipeline so concurrent callers observe a consistent pre-insert count.
//
// Every call is bounded by the configured timeout; an exceeded deadline
// surfaces as an ordinary error for the fallback layer to absorb.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default "admission:").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTimeout bounds every Redis round trip (default 5s).
func WithTimeout(timeout time.Duration) RedisOption {
	return func(r *Redis) {
		r.timeout = timeout
	}
}

// NewRedis wraps an existing client. The client is not pinged here: the store
// must be constructible while Redis is down so the fallback path can carry
// traffic until it recovers. Use Ping for an explicit reachability probe.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		prefix:  defaultPrefix,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping probes the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, r.counterKey(key))
	pipe.ExpireNX(ctx, r.counterKey(key), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return incr.Val(), nil
}

func (r *Redis) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	count, err := r.client.Get(ctx, r.counterKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return count, nil
}

func (r *Redis) SlidingIncrement(ctx context.Context, key string, window time.Duration) (SlidingResult, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	now := time.Now()
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	cutoff := now.Add(-window).UnixMilli()
	eventsKey := r.eventsKey(key)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, eventsKey, "-inf", fmt.Sprintf("(%d", cutoff))
	prior := pipe.ZCard(ctx, eventsKey)
	pipe.ZAdd(ctx, eventsKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	oldest := pipe.ZRangeWithScores(ctx, eventsKey, 0, 0)
	pipe.Expire(ctx, eventsKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return SlidingResult{}, fmt.Errorf("redis sliding increment: %w", err)
	}

	result := SlidingResult{
		Prior:  prior.Val(),
		Oldest: now,
		Member: member,
	}
	if zs := oldest.Val(); len(zs) > 0 {
		result.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return result, nil
}

func (r *Redis) SlidingRemove(ctx context.Context, key, member string) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if err := r.client.ZRem(ctx, r.eventsKey(key), member).Err(); err != nil {
		return fmt.Errorf("redis sliding remove: %w", err)
	}
	return nil
}

func (r *Redis) SlidingCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	cutoff := time.Now().Add(-window).UnixMilli()
	eventsKey := r.eventsKey(key)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, eventsKey, "-inf", fmt.Sprintf("(%d", cutoff))
	count := pipe.ZCard(ctx, eventsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis sliding count: %w", err)
	}
	return count.Val(), nil
}

func (r *Redis) SetBlock(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if ttl <= 0 {
		if err := r.client.Del(ctx, r.blockKey(key)).Err(); err != nil {
			return fmt.Errorf("redis unblock: %w", err)
		}
		return nil
	}
	if err := r.client.Set(ctx, r.blockKey(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set block: %w", err)
	}
	return nil
}

func (r *Redis) IsBlocked(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	exists, err := r.client.Exists(ctx, r.blockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis is blocked: %w", err)
	}
	return exists > 0, nil
}

func (r *Redis) BlockTTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	ttl, err := r.client.PTTL(ctx, r.blockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis block ttl: %w", err)
	}
	if ttl < 0 {
		// -1 (no expiry) and -2 (no key) both mean no active block window.
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	err := r.client.Del(ctx, r.counterKey(key), r.eventsKey(key), r.blockKey(key)).Err()
	if err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

func (r *Redis) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Redis) counterKey(key string) string {
	return r.prefix + key
}

func (r *Redis) eventsKey(key string) string {
	return r.prefix + key + ":events"
}

func (r *Redis) blockKey(key string) string {
	return r.prefix + key + ":block"
}
