package store

import (
	"context"
	"time"
)

// SlidingResult is the outcome of a SlidingIncrement.
//
// Prior is the number of events that were already inside the trailing window
// before this call inserted its own event; the algorithm layer compares Prior
// against the quota. Member is the token that was inserted for this event and
// must be passed unchanged to SlidingRemove if the decision turns out to be a
// denial. Oldest is the timestamp of the oldest event retained in the window
// (including the one just inserted) and drives the reset-time calculation on
// denial.
type SlidingResult struct {
	Prior  int64
	Oldest time.Time
	Member string
}

// Stats describes the in-memory footprint of a Local store.
type Stats struct {
	// ActiveLimits is the number of keys with live counter or event state.
	ActiveLimits int
	// ActiveBlocks is the number of keys currently under a penalty block.
	ActiveBlocks int
	// MemoryBytes is a rough estimate of the state held for those keys.
	MemoryBytes int64
}

// Store is the atomic counter primitive shared by both admission algorithms.
//
// Implementations must make each method atomic with respect to concurrent
// callers for the same key: two concurrent Increment calls must never observe
// the same pre-increment value, and SlidingIncrement must perform its
// prune/count/insert/refresh cycle as one indivisible step. There is no
// cross-key ordering guarantee and none is needed.
//
// All methods accept a context; implementations that cross a network boundary
// must bound every call with a timeout and return an error rather than hang.
type Store interface {
	// Increment atomically increments the fixed-window counter for key and
	// returns the post-increment value. The window expiry is attached when
	// the bucket is created and is NOT refreshed by later increments, so the
	// bucket resets exactly one window after its first request.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count returns the current fixed-window count without consuming quota.
	// A missing or expired bucket yields 0, not an error.
	Count(ctx context.Context, key string) (int64, error)

	// SlidingIncrement atomically prunes events older than the trailing
	// window, counts the survivors, inserts an event for the current request
	// and refreshes the key's expiry.
	SlidingIncrement(ctx context.Context, key string, window time.Duration) (SlidingResult, error)

	// SlidingRemove deletes a previously inserted event. It is the
	// compensating write for a SlidingIncrement whose decision was a denial
	// and must be called with the exact Member returned by that increment.
	SlidingRemove(ctx context.Context, key, member string) error

	// SlidingCount returns the number of events inside the trailing window
	// without inserting anything.
	SlidingCount(ctx context.Context, key string, window time.Duration) (int64, error)

	// SetBlock places a penalty block on key for ttl. A ttl <= 0 removes any
	// existing block.
	SetBlock(ctx context.Context, key string, ttl time.Duration) error

	// IsBlocked reports whether key is under an unexpired penalty block.
	IsBlocked(ctx context.Context, key string) (bool, error)

	// BlockTTL returns the remaining duration of the block on key, or 0 when
	// no block is active.
	BlockTTL(ctx context.Context, key string) (time.Duration, error)

	// Clear removes the whole key family for key: fixed-window counter,
	// sliding-window events and any penalty block.
	Clear(ctx context.Context, key string) error
}
