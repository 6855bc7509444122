package auth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Configuration errors. These are fatal at startup: a process must not
// serve traffic with a broken provider registry.
var (
	ErrDuplicateScheme = errors.New("scheme already registered")
	ErrEmptyScheme     = errors.New("scheme name must not be empty")
	ErrNoDefaultScheme = errors.New("no default scheme registered")
	ErrTwoDefaults     = errors.New("more than one default scheme registered")
)

// Registration declares an authentication provider to the registry.
type Registration struct {
	// Scheme is the verification scheme name, unique within a registry.
	Scheme string

	// Priority orders providers when several match an issuer; 0 is the
	// highest priority. Ties break on scheme name for determinism.
	Priority int

	// Default marks the internal/fallback scheme used for tokens whose
	// issuer is empty or matches no registered provider. Exactly one
	// registration per registry must set this.
	Default bool

	// MatchIssuer reports whether this provider handles tokens from the
	// given issuer. Nil matchers never match (default-only providers).
	MatchIssuer func(issuer string) bool
}

// ProviderRegistry holds registered authentication providers and selects a
// verification scheme for an issuer. It is populated once at startup and
// read-many afterward; reads take a shared lock and never block each other.
type ProviderRegistry struct {
	mu            sync.RWMutex
	bySchemes     map[string]Registration
	ordered       []Registration // sorted by (Priority asc, Scheme asc)
	defaultScheme string
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		bySchemes: make(map[string]Registration),
	}
}

// Register adds a provider. Duplicate scheme names and competing defaults
// are configuration errors.
func (r *ProviderRegistry) Register(reg Registration) error {
	if reg.Scheme == "" {
		return ErrEmptyScheme
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySchemes[reg.Scheme]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateScheme, reg.Scheme)
	}
	if reg.Default {
		if r.defaultScheme != "" {
			return fmt.Errorf("%w: %q and %q", ErrTwoDefaults, r.defaultScheme, reg.Scheme)
		}
		r.defaultScheme = reg.Scheme
	}

	r.bySchemes[reg.Scheme] = reg
	r.ordered = append(r.ordered, reg)
	sort.Slice(r.ordered, func(i, j int) bool {
		if r.ordered[i].Priority != r.ordered[j].Priority {
			return r.ordered[i].Priority < r.ordered[j].Priority
		}
		return r.ordered[i].Scheme < r.ordered[j].Scheme
	})

	return nil
}

// Validate checks the startup invariant: a default scheme must exist.
func (r *ProviderRegistry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultScheme == "" {
		return ErrNoDefaultScheme
	}
	return nil
}

// DefaultScheme returns the fallback scheme name.
func (r *ProviderRegistry) DefaultScheme() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultScheme
}

// SelectScheme picks the verification scheme for an issuer. An empty
// issuer, or an issuer no registered matcher claims, falls back to the
// default scheme. When several providers match, the lowest priority value
// wins, with scheme name as the deterministic tie-break.
func (r *ProviderRegistry) SelectScheme(issuer string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if issuer == "" {
		return r.defaultScheme
	}

	for _, reg := range r.ordered {
		if reg.MatchIssuer != nil && reg.MatchIssuer(issuer) {
			return reg.Scheme
		}
	}

	return r.defaultScheme
}

// Schemes returns the registered scheme names in selection order.
func (r *ProviderRegistry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ordered))
	for _, reg := range r.ordered {
		names = append(names, reg.Scheme)
	}
	return names
}
