package admission

// Recorder receives admission events for metrics backends. Implementations
// must be safe for concurrent use and must not block the check path.
type Recorder interface {
	// RecordCheck counts one admission check per policy and outcome.
	RecordCheck(policy string, allowed bool)

	// RecordBlock counts one penalty block being installed.
	RecordBlock(policy string)

	// RecordFallback counts one remote failure absorbed by the local path.
	RecordFallback()

	// ObserveCheckDuration records the latency of one check in seconds.
	ObserveCheckDuration(policy string, seconds float64)
}

// NoopRecorder is a placeholder that does nothing. It keeps the hot path free
// of nil checks when no metrics backend is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordCheck(string, bool)            {}
func (NoopRecorder) RecordBlock(string)                  {}
func (NoopRecorder) RecordFallback()                     {}
func (NoopRecorder) ObserveCheckDuration(string, float64) {}
