// Package scope is the transport under the reactor core: a tree of scope
// nodes, each with a handler table keyed by event Key, and a dispatch walk
// modelled on DOM event propagation (capture, target, bubble). Parent links
// are weak so a node never keeps its ancestors alive.
package scope

import "strings"

// Key identifies an event. Scope is the actor name an event belongs to
// (empty for unscoped events); Name is the short event name.
type Key struct {
	Scope string
	Name  string
}

// scopeSeparator joins Scope and Name in the string form.
const scopeSeparator = ":"

// Named returns an unscoped key.
func Named(name string) Key {
	return Key{Name: name}
}

// Scoped returns a key owned by scope.
func Scoped(scope, name string) Key {
	return Key{Scope: scope, Name: name}
}

// ParseKey parses "scope:name" or "name".
func ParseKey(s string) Key {
	if scope, name, ok := strings.Cut(s, scopeSeparator); ok {
		return Key{Scope: scope, Name: name}
	}
	return Key{Name: s}
}

// String renders the key as "scope:name", or "name" when unscoped.
func (k Key) String() string {
	if k.Scope == "" {
		return k.Name
	}
	return k.Scope + scopeSeparator + k.Name
}

// IsZero reports whether the key has no name.
func (k Key) IsZero() bool {
	return k.Name == ""
}

// WithScope returns k moved into scope.
func (k Key) WithScope(scope string) Key {
	return Key{Scope: scope, Name: k.Name}
}

// Standard event keys.
var (
	KeyError = Named("error")
)
