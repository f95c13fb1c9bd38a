package admission

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/manenim/gateway-admission/pkg/admission/store"
)

// coordinator routes each check to the remote store and replays it against
// the local store when the remote path fails for any reason. The caller
// always receives a Decision; remote failures degrade health, they do not
// propagate.
//
// The remote attempt sits behind a circuit breaker so that a dead backend is
// skipped cheaply while the breaker is open instead of paying a timeout per
// request. No state is synchronized between backends: after an outage local
// counts start fresh, an accepted bias toward availability over accuracy.
type coordinator struct {
	remote   store.Store // nil when running local-only
	local    *store.Local
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	recorder Recorder
	remoteUp atomic.Bool
}

func newCoordinator(remote store.Store, local *store.Local, logger *zap.Logger, recorder Recorder) *coordinator {
	c := &coordinator{
		remote:   remote,
		local:    local,
		logger:   logger,
		recorder: recorder,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "admission-remote",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.remoteUp.Store(remote != nil)
	return c
}

// check runs the admission algorithm remotely, falling back locally.
func (c *coordinator) check(ctx context.Context, p Policy, key string, now time.Time) (Decision, error) {
	if c.remote != nil {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return evaluate(ctx, c.remote, p, key, now)
		})
		if err == nil {
			c.markUp()
			return out.(Decision), nil
		}
		c.markDown(err)
	}
	return evaluate(ctx, c.local, p, key, now)
}

// remaining mirrors check for the read-only path.
func (c *coordinator) remaining(ctx context.Context, p Policy, key string, now time.Time) (int64, error) {
	if c.remote != nil {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return remaining(ctx, c.remote, p, key, now)
		})
		if err == nil {
			c.markUp()
			return out.(int64), nil
		}
		c.markDown(err)
	}
	return remaining(ctx, c.local, p, key, now)
}

// clear wipes the key family from both backends. The local side always
// succeeds; a remote failure is reported so administrative callers know the
// shared state may still hold the block.
func (c *coordinator) clear(ctx context.Context, key string) error {
	_ = c.local.Clear(ctx, key)

	if c.remote == nil {
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.remote.Clear(ctx, key)
	})
	if err != nil {
		c.markDown(err)
		return err
	}
	c.markUp()
	return nil
}

func (c *coordinator) healthy() bool {
	return c.remoteUp.Load()
}

func (c *coordinator) markUp() {
	if !c.remoteUp.Swap(true) {
		c.logger.Info("remote store recovered")
	}
}

func (c *coordinator) markDown(err error) {
	c.recorder.RecordFallback()
	if c.remoteUp.Swap(false) {
		c.logger.Warn("remote store unavailable, serving decisions from local store", zap.Error(err))
	}
}
