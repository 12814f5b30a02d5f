package scope

import (
	"slices"
	"sync/atomic"
	"weak"
)

// ReactorClass marks nodes owned by a reactor. Error attribution and
// reactor lookups search for it.
const ReactorClass = "reactor"

var nodeSeq atomic.Uint64

// Target is anything that resolves to a scope node: nodes themselves and
// every mounted component.
type Target interface {
	ScopeNode() *Node
}

// Node is one element of the scope tree. Children are owned by their
// parent; the parent link is weak.
type Node struct {
	id      uint64
	label   string
	classes []string
	owner   any

	parent   weak.Pointer[Node]
	children []*Node

	bindings map[Key][]*Binding
	values   map[any]any
}

// Binding is one installed handler.
type Binding struct {
	node    *Node
	key     Key
	handler Handler
	capture bool
	removed bool
}

// Node returns the node the binding is installed on.
func (b *Binding) Node() *Node { return b.node }

// Key returns the event key the binding answers.
func (b *Binding) Key() Key { return b.key }

// Capture reports whether the binding runs in the capture phase.
func (b *Binding) Capture() bool { return b.capture }

// Active reports whether the binding is still installed.
func (b *Binding) Active() bool { return !b.removed }

// NewRoot creates a detached root node.
func NewRoot(label string) *Node {
	return &Node{
		id:    nodeSeq.Add(1),
		label: label,
	}
}

// NewChild creates a node under n.
func (n *Node) NewChild(label string, classes ...string) *Node {
	child := &Node{
		id:      nodeSeq.Add(1),
		label:   label,
		classes: classes,
		parent:  weak.Make(n),
	}
	n.children = append(n.children, child)
	return child
}

// ScopeNode implements Target.
func (n *Node) ScopeNode() *Node { return n }

// ID returns the node's process-unique id.
func (n *Node) ID() uint64 { return n.id }

// Label returns the human-readable label.
func (n *Node) Label() string { return n.label }

// HasClass reports whether the node carries class.
func (n *Node) HasClass(class string) bool {
	return slices.Contains(n.classes, class)
}

// SetOwner records the component that rendered the node.
func (n *Node) SetOwner(owner any) { n.owner = owner }

// Owner returns the component that rendered the node.
func (n *Node) Owner() any { return n.owner }

// Parent returns the parent node, or nil for roots, detached nodes and
// nodes whose parent has been collected.
func (n *Node) Parent() *Node {
	return n.parent.Value()
}

// Children returns a snapshot of the child list.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// Detach removes n from its parent. Listeners on n stay installed.
func (n *Node) Detach() {
	parent := n.Parent()
	n.parent = weak.Pointer[Node]{}
	if parent == nil {
		return
	}
	parent.children = slices.DeleteFunc(parent.children, func(c *Node) bool { return c == n })
}

// Path returns the chain from the root down to n, inclusive.
func (n *Node) Path() []*Node {
	var path []*Node
	for cur := n; cur != nil; cur = cur.Parent() {
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}

// Closest returns n or its nearest ancestor carrying class.
func (n *Node) Closest(class string) *Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.HasClass(class) {
			return cur
		}
	}
	return nil
}

// SetValue stores a value visible to n and its descendants through Lookup.
func (n *Node) SetValue(key, value any) {
	if n.values == nil {
		n.values = make(map[any]any)
	}
	n.values[key] = value
}

// Lookup finds the value stored under key on n or its nearest ancestor.
func (n *Node) Lookup(key any) (any, bool) {
	for cur := n; cur != nil; cur = cur.Parent() {
		if v, ok := cur.values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AddListener installs handler for key on n.
func (n *Node) AddListener(key Key, handler Handler, capture bool) *Binding {
	if n.bindings == nil {
		n.bindings = make(map[Key][]*Binding)
	}
	b := &Binding{node: n, key: key, handler: handler, capture: capture}
	n.bindings[key] = append(n.bindings[key], b)
	return b
}

// RemoveListener uninstalls b. Returns false when b was not installed on n.
func (n *Node) RemoveListener(b *Binding) bool {
	if b == nil || b.node != n || b.removed {
		return false
	}
	list := n.bindings[b.key]
	idx := slices.Index(list, b)
	if idx < 0 {
		return false
	}
	b.removed = true
	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(n.bindings, b.key)
	} else {
		n.bindings[b.key] = list
	}
	return true
}

// ListenerCount returns how many bindings answer key on n.
func (n *Node) ListenerCount(key Key) int {
	return len(n.bindings[key])
}

// Keys returns every key with at least one binding on n.
func (n *Node) Keys() []Key {
	keys := make([]Key, 0, len(n.bindings))
	for k := range n.bindings {
		keys = append(keys, k)
	}
	return keys
}
