package admission

import (
	"fmt"
	"sync"
)

// Registry maps logical operation names to rate-limit policies.
//
// Registration is expected to happen once at process startup; lookups are
// read-mostly and cheap. Rate limiting is opt-in per operation: looking up a
// name that was never registered yields ErrUnknownPolicy, which the Service
// translates into an allow decision by default.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Policy),
	}
}

// Register validates and stores a policy under its name. Registering an
// invalid policy or reusing a name is a configuration defect and fails fast.
func (r *Registry) Register(p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Algorithm == "" {
		p.Algorithm = FixedWindow
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[p.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePolicy, p.Name)
	}
	r.policies[p.Name] = p
	return nil
}

// MustRegister is Register for static setup code, panicking on error.
func (r *Registry) MustRegister(p Policy) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Lookup returns the policy registered under name, or ErrUnknownPolicy.
func (r *Registry) Lookup(name string) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Names returns the registered operation names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}

func (p Policy) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %q: window must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %q: maxRequests must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.Penalty < 0 {
		return fmt.Errorf("%w: %q: penalty cannot be negative", ErrInvalidPolicy, p.Name)
	}
	switch p.Algorithm {
	case "", FixedWindow, SlidingWindow:
	default:
		return fmt.Errorf("%w: %q: unknown algorithm %q", ErrInvalidPolicy, p.Name, p.Algorithm)
	}
	return nil
}
