package admission

import (
	"context"
	"time"

	"github.com/manenim/gateway-admission/pkg/admission/store"
)

// evaluate runs one admission check for key against s. The penalty block is
// consulted before any counting; the counting strategy is then dispatched on
// the policy's algorithm. The same function runs against either backend,
// which is what lets the fallback layer replay a failed remote check locally
// without duplicating algorithm logic.
func evaluate(ctx context.Context, s store.Store, p Policy, key string, now time.Time) (Decision, error) {
	blocked, err := s.IsBlocked(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		ttl, err := s.BlockTTL(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		return denial(p, now.Add(ttl), now, true), nil
	}

	if p.Algorithm == SlidingWindow {
		return evaluateSliding(ctx, s, p, key, now)
	}
	return evaluateFixed(ctx, s, p, key, now)
}

func evaluateFixed(ctx context.Context, s store.Store, p Policy, key string, now time.Time) (Decision, error) {
	count, err := s.Increment(ctx, key, p.Window)
	if err != nil {
		return Decision{}, err
	}

	if count > p.MaxRequests {
		return applyPenalty(ctx, s, p, key, now)
	}
	return Decision{
		Allowed:   true,
		Limit:     p.MaxRequests,
		Remaining: p.MaxRequests - count,
		ResetTime: now.Add(p.Window),
	}, nil
}

func evaluateSliding(ctx context.Context, s store.Store, p Policy, key string, now time.Time) (Decision, error) {
	res, err := s.SlidingIncrement(ctx, key, p.Window)
	if err != nil {
		return Decision{}, err
	}

	if res.Prior >= p.MaxRequests {
		// Over quota: retract the event we just inserted. The removal must
		// target the exact member token from the insert; recomputing it
		// would leak one phantom event per denial.
		if err := s.SlidingRemove(ctx, key, res.Member); err != nil {
			return Decision{}, err
		}
		if p.Penalty > 0 {
			return applyPenalty(ctx, s, p, key, now)
		}
		return denial(p, res.Oldest.Add(p.Window), now, false), nil
	}
	return Decision{
		Allowed:   true,
		Limit:     p.MaxRequests,
		Remaining: p.MaxRequests - res.Prior - 1,
		ResetTime: now.Add(p.Window),
	}, nil
}

// applyPenalty finalizes a quota-exceeded denial, installing the penalty
// block when the policy carries one.
func applyPenalty(ctx context.Context, s store.Store, p Policy, key string, now time.Time) (Decision, error) {
	if p.Penalty <= 0 {
		return denial(p, now.Add(p.Window), now, false), nil
	}
	if err := s.SetBlock(ctx, key, p.Penalty); err != nil {
		return Decision{}, err
	}
	return denial(p, now.Add(p.Penalty), now, true), nil
}

// remaining is the read-only companion of evaluate; it consumes no quota.
func remaining(ctx context.Context, s store.Store, p Policy, key string, now time.Time) (int64, error) {
	blocked, err := s.IsBlocked(ctx, key)
	if err != nil {
		return 0, err
	}
	if blocked {
		return 0, nil
	}

	var count int64
	if p.Algorithm == SlidingWindow {
		count, err = s.SlidingCount(ctx, key, p.Window)
	} else {
		count, err = s.Count(ctx, key)
	}
	if err != nil {
		return 0, err
	}

	left := p.MaxRequests - count
	if left < 0 {
		left = 0
	}
	return left, nil
}

func denial(p Policy, reset, now time.Time, blocked bool) Decision {
	retry := reset.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{
		Allowed:    false,
		Blocked:    blocked,
		Limit:      p.MaxRequests,
		Remaining:  0,
		ResetTime:  reset,
		RetryAfter: retry,
	}
}
