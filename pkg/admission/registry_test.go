package admission

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_Register_Validation(t *testing.T) {
	valid := Policy{Name: "upload", Window: time.Minute, MaxRequests: 10}

	cases := []struct {
		name   string
		mutate func(Policy) Policy
		want   error
	}{
		{"valid", func(p Policy) Policy { return p }, nil},
		{"missing name", func(p Policy) Policy { p.Name = ""; return p }, ErrInvalidPolicy},
		{"zero window", func(p Policy) Policy { p.Window = 0; return p }, ErrInvalidPolicy},
		{"negative window", func(p Policy) Policy { p.Window = -time.Second; return p }, ErrInvalidPolicy},
		{"zero quota", func(p Policy) Policy { p.MaxRequests = 0; return p }, ErrInvalidPolicy},
		{"negative penalty", func(p Policy) Policy { p.Penalty = -time.Second; return p }, ErrInvalidPolicy},
		{"unknown algorithm", func(p Policy) Policy { p.Algorithm = "leaky"; return p }, ErrInvalidPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewRegistry().Register(tc.mutate(valid))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Register failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Register error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	registry := NewRegistry()
	p := Policy{Name: "upload", Window: time.Minute, MaxRequests: 10}

	if err := registry.Register(p); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(p); !errors.Is(err, ErrDuplicatePolicy) {
		t.Fatalf("second Register error = %v, want ErrDuplicatePolicy", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Policy{Name: "login", Window: time.Minute, MaxRequests: 5})

	p, err := registry.Lookup("login")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if p.Algorithm != FixedWindow {
		t.Errorf("default algorithm = %q, want fixed", p.Algorithm)
	}

	_, err = registry.Lookup("unregistered")
	if !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("Lookup error = %v, want ErrUnknownPolicy", err)
	}
}

func TestRegistry_MustRegister_PanicsOnDefect(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid policy")
		}
	}()
	NewRegistry().MustRegister(Policy{Name: "broken"})
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Policy{Name: "a", Window: time.Second, MaxRequests: 1})
	registry.MustRegister(Policy{Name: "b", Window: time.Second, MaxRequests: 1})

	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("Names = %v, want 2 entries", names)
	}
}
