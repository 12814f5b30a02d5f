// Package flags provides feature flag support for diagnostics in the
// reactor core. A Registry is immutable; toggling returns a new one.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/reactor/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagDispatchTrace logs every step of every dispatch walk.
	FlagDispatchTrace = "dispatch-trace"

	// FlagNearMissSuggestions attaches similar published event names to
	// subscription errors.
	FlagNearMissSuggestions = "near-miss-suggestions"
)

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
// If flags is nil, an empty registry is created (all flags unset).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags and on a nil registry.
func (r *Registry) Enabled(name string) bool {
	return r.EnabledOr(name, false)
}

// EnabledOr returns the flag's value, or fallback when the flag is not set
// or the registry is nil.
func (r *Registry) EnabledOr(name string, fallback bool) bool {
	if r == nil {
		return fallback
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unset flag accessed", "flag", name, "result", fallback)
		return fallback
	}
	return value
}

// With returns a copy of r with name set to value.
func (r *Registry) With(name string, value bool) *Registry {
	next := r.All()
	next[name] = value
	return &Registry{flags: next}
}

// Names returns the set flag names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.flags))
}

// All returns a copy of all flags (for debugging/logging and saving).
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}
