package admission

import (
	"net/http"
	"time"
)

// Algorithm selects the counting strategy for a policy.
type Algorithm string

const (
	// FixedWindow counts requests in aligned buckets that reset one window
	// after the first request of the bucket.
	FixedWindow Algorithm = "fixed"
	// SlidingWindow counts requests in a continuously moving trailing
	// interval, avoiding the boundary bursts fixed windows allow.
	SlidingWindow Algorithm = "sliding"
)

// KeyFunc derives the identity key for a request. It must be pure with
// respect to the request and must not panic; an empty result falls back to
// the caller's default strategy.
type KeyFunc func(r *http.Request) string

// SkipFunc reports whether admission control should be bypassed entirely for
// a request. Same purity requirements as KeyFunc.
type SkipFunc func(r *http.Request) bool

// Policy is an immutable rate-limit policy, registered once at startup and
// bound to a logical operation name.
type Policy struct {
	// Name is the operation this policy guards, e.g. "upload" or "login".
	Name string

	// Window is the size of the counting window.
	Window time.Duration

	// MaxRequests is the quota per window.
	MaxRequests int64

	// Penalty, when positive, blocks a key that exceeds its quota for this
	// long, overriding normal window expiry.
	Penalty time.Duration

	// Algorithm is the counting strategy; defaults to FixedWindow.
	Algorithm Algorithm

	// Key optionally overrides how the identity key is derived from a
	// request. The default is the client identity joined with the operation
	// name.
	Key KeyFunc

	// Skip optionally bypasses admission control for matching requests.
	Skip SkipFunc
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Blocked is true when a denial is due to an active penalty block rather
	// than ordinary quota exhaustion.
	Blocked bool

	// Limit is the quota of the applied policy.
	Limit int64

	// Remaining is the quota left in the current window after this decision.
	// It is -1 when no policy applied (unknown operation, fail-open).
	Remaining int64

	// ResetTime is when the window, or the penalty block, clears.
	ResetTime time.Time

	// RetryAfter is ResetTime relative to the time of the check; 0 when
	// allowed. Suitable for a Retry-After header.
	RetryAfter time.Duration
}

// Stats describes the service's local in-memory state. Remote-store entries
// expire natively in Redis and are not reflected here.
type Stats struct {
	ActiveLimits int   `json:"activeLimits"`
	ActiveBlocks int   `json:"activeBlocks"`
	MemoryBytes  int64 `json:"memoryBytes"`
}

// Health reports the availability of the remote backend.
type Health struct {
	RemoteUp bool `json:"remoteUp"`
}
