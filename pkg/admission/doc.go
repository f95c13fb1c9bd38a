// Package admission provides request admission control: a dual-algorithm,
// dual-backend rate limiter with penalty blocks, transparent local fallback
// and per-operation policy binding.
//
// The primary entry point is the Service:
//
//	dec, err := svc.Check(ctx, "login", clientIP)
//
// The returned Decision contains whether the request is allowed, how much
// quota remains, and timing data for callers that want to set rate-limit
// headers (for example, Retry-After).
//
// # Overview
//
// Callers register a Policy per logical operation ("upload", "login",
// "metadata-search") in a Registry, then ask the Service for a decision on
// every inbound request. The Service checks the key's penalty block first,
// then counts the request with the policy's algorithm against the remote
// store, falling back to the local store if the remote path fails.
//
// # Algorithms
//
// Two counting strategies are available per policy:
//
//   - FixedWindow: a counter per discrete time bucket. The bucket's expiry
//     is pinned to its first request, so it resets exactly one window later.
//     Cheap (one atomic increment) but allows up to 2x burst across a bucket
//     boundary.
//
//   - SlidingWindow: a set of event timestamps in a continuously moving
//     trailing interval. Avoids the boundary burst at the cost of one extra
//     round trip and a compensating delete when a request is denied.
//
// # Penalty Blocks
//
// A policy with a Penalty duration blocks a key outright once it exceeds its
// quota. The block short-circuits both algorithms until it expires naturally;
// nothing removes it early except the administrative Clear. Policies without
// a penalty simply deny until the window resets.
//
// # Backends and Fallback
//
// The package provides two stores with the same contract:
//
//   - store.Local: an in-process store backed by Go maps. State is local to
//     the process; expired entries are dropped lazily and by the periodic
//     housekeeping sweep.
//
//   - store.Redis: a shared store for multi-replica deployments. Counting is
//     atomic through MULTI/EXEC pipelines and entries expire through native
//     TTLs.
//
// A Service constructed with WithRemoteStore runs every decision against the
// remote store and transparently replays it on the local store when the
// remote call fails or times out. The caller always receives a Decision;
// Health reports the degraded state and a circuit breaker keeps a dead
// backend from costing a timeout per request. Counts restart locally during
// an outage, trading strict accuracy for availability.
//
// # Error Policy
//
// Configuration defects fail fast: registering an invalid policy returns
// ErrInvalidPolicy, and checking with an empty key returns ErrEmptyKey.
// Checking an operation with no registered policy returns an allow decision
// together with ErrUnknownPolicy, so rate limiting stays opt-in per route and
// callers may still fail closed if they prefer. Remote store failures never
// surface from Check.
//
// # Concurrency
//
// A Service is safe for concurrent use. Per-key updates are linearizable:
// both stores perform their read-modify-write cycles atomically, so two
// concurrent checks for the same key never observe the same pre-increment
// count. Keys are independent; there is no cross-key ordering.
//
// # Housekeeping
//
// WithSweepInterval schedules a periodic sweep that evicts expired local
// counters and elapsed blocks; Close stops it. Remote entries need no sweep.
//
// # Usage
//
//	registry := admission.NewRegistry()
//	registry.MustRegister(admission.Policy{
//		Name:        "login",
//		Window:      time.Minute,
//		MaxRequests: 5,
//		Penalty:     5 * time.Minute,
//		Algorithm:   admission.SlidingWindow,
//	})
//
//	svc := admission.New(registry,
//		admission.WithRemoteStore(store.NewRedis(client)),
//		admission.WithSweepInterval(30*time.Second),
//		admission.WithLogger(logger),
//	)
//	defer svc.Close()
//
// For a runnable example see ExampleService in example_test.go.
package admission
