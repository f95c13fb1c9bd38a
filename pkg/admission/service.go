package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/gateway-admission/pkg/admission/store"
)

// Service is the admission-control entry point.
//
// A Service owns its counter and block state through explicitly constructed
// stores; there is no process-wide singleton, so tests and multi-tenant
// setups can run isolated instances side by side.
type Service struct {
	registry *Registry
	coord    *coordinator
	local    *store.Local
	sweeper  *Sweeper
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	remote        store.Store
	local         *store.Local
	recorder      Recorder
	logger        *zap.Logger
	now           func() time.Time
	sweepInterval time.Duration
}

// WithRemoteStore attaches a shared remote store. Checks run against it
// first and fall back to the local store on any failure.
func WithRemoteStore(s store.Store) Option {
	return func(c *serviceConfig) {
		c.remote = s
	}
}

// WithLocalStore overrides the in-process store, mainly so tests can inject
// one with a controlled clock.
func WithLocalStore(l *store.Local) Option {
	return func(c *serviceConfig) {
		c.local = l
	}
}

// WithRecorder injects a metrics backend (default: no-op).
func WithRecorder(r Recorder) Option {
	return func(c *serviceConfig) {
		c.recorder = r
	}
}

// WithLogger injects a structured logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = l
	}
}

// WithNowFunc overrides the service clock. Intended for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(c *serviceConfig) {
		c.now = now
	}
}

// WithSweepInterval enables periodic housekeeping of the local store at the
// given interval. The sweeper starts with the Service and stops on Close.
func WithSweepInterval(d time.Duration) Option {
	return func(c *serviceConfig) {
		c.sweepInterval = d
	}
}

// New constructs a Service over the given policy registry.
func New(registry *Registry, opts ...Option) *Service {
	cfg := &serviceConfig{
		recorder: NoopRecorder{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.local == nil {
		cfg.local = store.NewLocal(store.WithNowFunc(cfg.now))
	}

	s := &Service{
		registry: registry,
		local:    cfg.local,
		recorder: cfg.recorder,
		logger:   cfg.logger,
		now:      cfg.now,
	}
	s.coord = newCoordinator(cfg.remote, cfg.local, cfg.logger, cfg.recorder)

	if cfg.sweepInterval > 0 {
		s.sweeper = NewSweeper(cfg.local, cfg.sweepInterval, cfg.logger)
		s.sweeper.Start()
	}
	return s
}

// Check decides whether one request for identityKey may proceed under the
// named policy. The caller always receives a usable Decision when err is nil
// or ErrUnknownPolicy; the latter accompanies an allow decision so callers
// pick fail-open (default) or fail-closed.
func (s *Service) Check(ctx context.Context, policyName, identityKey string) (Decision, error) {
	start := time.Now()

	if identityKey == "" {
		return Decision{}, ErrEmptyKey
	}
	p, err := s.registry.Lookup(policyName)
	if err != nil {
		// Rate limiting is opt-in per operation: no policy means no limit.
		return Decision{Allowed: true, Remaining: -1}, err
	}

	now := s.now()
	dec, err := s.coord.check(ctx, p, s.storeKey(policyName, identityKey), now)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.recorder.RecordCheck(policyName, dec.Allowed)
	if dec.Blocked && !dec.Allowed {
		s.recorder.RecordBlock(policyName)
	}
	s.recorder.ObserveCheckDuration(policyName, time.Since(start).Seconds())

	if !dec.Allowed {
		s.logger.Debug("request denied",
			zap.String("policy", policyName),
			zap.String("key", identityKey),
			zap.Bool("blocked", dec.Blocked),
			zap.Time("reset", dec.ResetTime),
		)
	}
	return dec, nil
}

// Remaining reports the quota left for identityKey under the named policy
// without consuming any of it.
func (s *Service) Remaining(ctx context.Context, policyName, identityKey string) (int64, error) {
	if identityKey == "" {
		return 0, ErrEmptyKey
	}
	p, err := s.registry.Lookup(policyName)
	if err != nil {
		return 0, err
	}
	return s.coord.remaining(ctx, p, s.storeKey(policyName, identityKey), s.now())
}

// Clear is the administrative override: it removes any active block and
// resets the counters for identityKey, so the next request behaves as if the
// key were fresh.
func (s *Service) Clear(ctx context.Context, policyName, identityKey string) error {
	if identityKey == "" {
		return ErrEmptyKey
	}
	if _, err := s.registry.Lookup(policyName); err != nil {
		return err
	}
	return s.coord.clear(ctx, s.storeKey(policyName, identityKey))
}

// Stats reports the local store's footprint.
func (s *Service) Stats() Stats {
	st := s.local.Stats()
	return Stats{
		ActiveLimits: st.ActiveLimits,
		ActiveBlocks: st.ActiveBlocks,
		MemoryBytes:  st.MemoryBytes,
	}
}

// Health reports whether the remote backend is currently serving decisions.
// A service with no remote store reports RemoteUp=false.
func (s *Service) Health() Health {
	return Health{RemoteUp: s.coord.healthy()}
}

// Policy exposes the registered policy for name, for callers (such as HTTP
// middleware) that need its key or skip strategy.
func (s *Service) Policy(name string) (Policy, error) {
	return s.registry.Lookup(name)
}

// Close stops background housekeeping. It does not close injected stores.
func (s *Service) Close() error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	return nil
}

// IsUnknownPolicy reports whether err is the fail-open unknown-policy signal.
func IsUnknownPolicy(err error) bool {
	return errors.Is(err, ErrUnknownPolicy)
}

// storeKey is the default key strategy: client identity joined with the
// operation name. Keys are opaque past this point.
func (s *Service) storeKey(policyName, identityKey string) string {
	return identityKey + ":" + policyName
}
