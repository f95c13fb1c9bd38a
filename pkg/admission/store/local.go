package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type counterEntry struct {
	count     int64
	windowEnd time.Time
}

type slidingEvent struct {
	at     time.Time
	member string
}

type slidingSet struct {
	events []slidingEvent
	// expiry mirrors the Redis key TTL: refreshed to now+window on every
	// insert, so an idle set can be swept without knowing its policy.
	expiry time.Time
}

// Local is an in-process Store backed by Go maps.
//
// It is safe for concurrent use by multiple goroutines, but its state is local
// to the process and is not shared across replicas. It serves two roles: the
// backend for single-instance deployments and tests, and the fallback target
// when the Redis store is unreachable.
//
// Expired state is dropped lazily on access; long-lived processes should also
// run a periodic Sweep to bound memory for keys that stop sending traffic.
type Local struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	events   map[string]*slidingSet
	blocks   map[string]time.Time
	now      func() time.Time
}

// LocalOption configures a Local store.
type LocalOption func(*Local)

// WithNowFunc overrides the store's clock. Intended for tests that need to
// move time without sleeping.
func WithNowFunc(now func() time.Time) LocalOption {
	return func(l *Local) {
		l.now = now
	}
}

// NewLocal constructs a Local store with empty state.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		counters: make(map[string]*counterEntry),
		events:   make(map[string]*slidingSet),
		blocks:   make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.counters[key]
	if !ok || !now.Before(entry.windowEnd) {
		// Fresh bucket; the expiry is pinned to the first request and is not
		// refreshed by later increments.
		entry = &counterEntry{windowEnd: now.Add(window)}
		l.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (l *Local) Count(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.counters[key]
	if !ok {
		return 0, nil
	}
	if !l.now().Before(entry.windowEnd) {
		delete(l.counters, key)
		return 0, nil
	}
	return entry.count, nil
}

func (l *Local) SlidingIncrement(_ context.Context, key string, window time.Duration) (SlidingResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	set := l.pruneLocked(key, now.Add(-window))
	if set == nil {
		set = &slidingSet{}
		l.events[key] = set
	}

	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	prior := int64(len(set.events))
	set.events = append(set.events, slidingEvent{at: now, member: member})
	set.expiry = now.Add(window)

	return SlidingResult{
		Prior:  prior,
		Oldest: set.events[0].at,
		Member: member,
	}, nil
}

func (l *Local) SlidingRemove(_ context.Context, key, member string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.events[key]
	if !ok {
		return nil
	}
	for i, ev := range set.events {
		if ev.member == member {
			set.events = append(set.events[:i], set.events[i+1:]...)
			break
		}
	}
	if len(set.events) == 0 {
		delete(l.events, key)
	}
	return nil
}

func (l *Local) SlidingCount(_ context.Context, key string, window time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := l.pruneLocked(key, l.now().Add(-window))
	if set == nil {
		return 0, nil
	}
	return int64(len(set.events)), nil
}

func (l *Local) SetBlock(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ttl <= 0 {
		delete(l.blocks, key)
		return nil
	}
	l.blocks[key] = l.now().Add(ttl)
	return nil
}

func (l *Local) IsBlocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.blocks[key]
	if !ok {
		return false, nil
	}
	if !l.now().Before(until) {
		delete(l.blocks, key)
		return false, nil
	}
	return true, nil
}

func (l *Local) BlockTTL(_ context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.blocks[key]
	if !ok {
		return 0, nil
	}
	ttl := until.Sub(l.now())
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *Local) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.counters, key)
	delete(l.events, key)
	delete(l.blocks, key)
	return nil
}

// Sweep removes expired counters, expired event sets and elapsed blocks,
// returning the number of keys dropped. It is the housekeeping entry point
// and is cheap enough to run on a short interval.
func (l *Local) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0

	for key, entry := range l.counters {
		if !now.Before(entry.windowEnd) {
			delete(l.counters, key)
			removed++
		}
	}
	for key, set := range l.events {
		if len(set.events) == 0 || !now.Before(set.expiry) {
			delete(l.events, key)
			removed++
		}
	}
	for key, until := range l.blocks {
		if !now.Before(until) {
			delete(l.blocks, key)
			removed++
		}
	}
	return removed
}

// Stats reports the current in-memory footprint.
func (l *Local) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var bytes int64
	for key := range l.counters {
		bytes += int64(len(key)) + 32
	}
	for key, set := range l.events {
		bytes += int64(len(key)) + 24
		for _, ev := range set.events {
			bytes += int64(len(ev.member)) + 24
		}
	}
	for key := range l.blocks {
		bytes += int64(len(key)) + 24
	}

	return Stats{
		ActiveLimits: len(l.counters) + len(l.events),
		ActiveBlocks: len(l.blocks),
		MemoryBytes:  bytes,
	}
}

// pruneLocked drops events older than cutoff and returns the surviving set,
// or nil when nothing remains. Caller must hold l.mu.
func (l *Local) pruneLocked(key string, cutoff time.Time) *slidingSet {
	set, ok := l.events[key]
	if !ok {
		return nil
	}
	kept := set.events[:0]
	for _, ev := range set.events {
		if !ev.at.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		delete(l.events, key)
		return nil
	}
	set.events = kept
	return set
}
