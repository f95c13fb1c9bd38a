package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedis returns a Redis store against a local instance, skipping the
// test when none is reachable.
func newTestRedis(t *testing.T) (*Redis, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedis(client, WithPrefix("admission_test:")), client
}

func testKey(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestRedis_Increment(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := testKey("incr")

	first, err := store.Increment(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if first != 1 {
		t.Errorf("first Increment = %d, want 1", first)
	}
	second, _ := store.Increment(ctx, key, time.Minute)
	if second != 2 {
		t.Errorf("second Increment = %d, want 2", second)
	}

	count, err := store.Count(ctx, key)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestRedis_Increment_ExpiryPinnedToFirstRequest(t *testing.T) {
	store, client := newTestRedis(t)
	ctx := context.Background()
	key := testKey("expiry")

	if _, err := store.Increment(ctx, key, time.Second); err != nil {
		t.Fatal(err)
	}
	ttlAfterFirst, _ := client.PTTL(ctx, store.counterKey(key)).Result()

	time.Sleep(200 * time.Millisecond)
	if _, err := store.Increment(ctx, key, time.Second); err != nil {
		t.Fatal(err)
	}
	ttlAfterSecond, _ := client.PTTL(ctx, store.counterKey(key)).Result()

	if ttlAfterSecond > ttlAfterFirst {
		t.Errorf("second increment extended the bucket expiry: %v -> %v", ttlAfterFirst, ttlAfterSecond)
	}
}

func TestRedis_SlidingIncrement(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := testKey("sliding")

	res1, err := store.SlidingIncrement(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("SlidingIncrement failed: %v", err)
	}
	if res1.Prior != 0 {
		t.Errorf("first Prior = %d, want 0", res1.Prior)
	}

	res2, _ := store.SlidingIncrement(ctx, key, time.Minute)
	if res2.Prior != 1 {
		t.Errorf("second Prior = %d, want 1", res2.Prior)
	}
	if res1.Member == res2.Member {
		t.Error("members must be unique per insertion")
	}

	// Compensating delete must target the inserted member.
	if err := store.SlidingRemove(ctx, key, res2.Member); err != nil {
		t.Fatalf("SlidingRemove failed: %v", err)
	}
	count, _ := store.SlidingCount(ctx, key, time.Minute)
	if count != 1 {
		t.Errorf("count after remove = %d, want 1", count)
	}
}

func TestRedis_Block(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := testKey("block")

	if err := store.SetBlock(ctx, key, 2*time.Second); err != nil {
		t.Fatalf("SetBlock failed: %v", err)
	}
	blocked, err := store.IsBlocked(ctx, key)
	if err != nil {
		t.Fatalf("IsBlocked failed: %v", err)
	}
	if !blocked {
		t.Error("expected key to be blocked")
	}

	ttl, err := store.BlockTTL(ctx, key)
	if err != nil {
		t.Fatalf("BlockTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("BlockTTL = %v, want (0, 2s]", ttl)
	}

	if err := store.SetBlock(ctx, key, 0); err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if blocked, _ := store.IsBlocked(ctx, key); blocked {
		t.Error("SetBlock with zero ttl should unblock")
	}
}

func TestRedis_Clear(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx := context.Background()
	key := testKey("clear")

	store.Increment(ctx, key, time.Minute)
	store.SlidingIncrement(ctx, key, time.Minute)
	store.SetBlock(ctx, key, time.Minute)

	if err := store.Clear(ctx, key); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if count, _ := store.Count(ctx, key); count != 0 {
		t.Errorf("counter survived Clear: %d", count)
	}
	if count, _ := store.SlidingCount(ctx, key, time.Minute); count != 0 {
		t.Errorf("events survived Clear: %d", count)
	}
	if blocked, _ := store.IsBlocked(ctx, key); blocked {
		t.Error("block survived Clear")
	}
}

func TestRedis_BoundedTimeout(t *testing.T) {
	store, _ := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Increment(ctx, testKey("timeout"), time.Minute); err == nil {
		t.Fatal("expected an error from a cancelled context, got nil")
	}
}
