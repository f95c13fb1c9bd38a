package admission

import "errors"

var (
	// ErrUnknownPolicy is returned by Check when no policy is registered for
	// the requested operation. The accompanying Decision is an allow, so
	// callers choose between fail-open (ignore the error, the default) and
	// fail-closed (reject on it).
	ErrUnknownPolicy = errors.New("admission: unknown policy")

	// ErrInvalidPolicy marks a policy that failed registration validation.
	// This is a configuration defect, not a runtime condition.
	ErrInvalidPolicy = errors.New("admission: invalid policy")

	// ErrDuplicatePolicy is returned when a name is registered twice.
	ErrDuplicatePolicy = errors.New("admission: policy already registered")

	// ErrEmptyKey is returned when a check is attempted with an empty
	// identity key. Like ErrInvalidPolicy it indicates a caller defect and
	// fails fast rather than being coerced into a decision.
	ErrEmptyKey = errors.New("admission: empty identity key")

	// ErrStoreUnavailable wraps remote store failures. It never reaches
	// Check callers, which always receive a locally computed Decision
	// instead; it can surface from administrative operations such as Clear.
	ErrStoreUnavailable = errors.New("admission: store unavailable")
)
