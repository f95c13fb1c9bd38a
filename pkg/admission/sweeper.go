package admission

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/manenim/gateway-admission/pkg/admission/store"
)

// Sweeper periodically evicts expired entries from a Local store so that
// memory stays bounded for keys that stop sending traffic. Remote entries
// expire through Redis TTLs and are never swept.
type Sweeper struct {
	cron   *cron.Cron
	local  *store.Local
	logger *zap.Logger
}

// NewSweeper schedules a sweep of local every interval. The schedule runs
// independently of request traffic; Start and Stop bound its lifetime.
func NewSweeper(local *store.Local, interval time.Duration, logger *zap.Logger) *Sweeper {
	s := &Sweeper{
		cron:   cron.New(),
		local:  local,
		logger: logger,
	}
	// AddFunc only fails on an unparseable spec; @every with a Duration
	// string cannot be one.
	_, _ = s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.sweep)
	return s
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	removed := s.local.Sweep()
	if removed > 0 {
		s.logger.Debug("housekeeping sweep", zap.Int("removed", removed))
	}
}
