package reactor

import (
	"errors"
	"fmt"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// PublishSpec declares an event a subtree publishes. Handlers is accepted
// only to reject it: publishers do not handle their own events.
type PublishSpec struct {
	Event    string
	Global   bool
	Bare     bool
	Handlers map[string]scope.Handler
}

// Publish registers a published event with the nearest reactor, or with
// the root reactor when Global is set.
type Publish struct {
	spec PublishSpec
	node *scope.Node
	key  scope.Key
}

// NewPublish validates spec and returns an unmounted publisher.
func NewPublish(spec PublishSpec) (*Publish, error) {
	if len(spec.Handlers) > 0 {
		return nil, fmt.Errorf("%w: publish %q declares handlers", ErrAmbiguousProps, spec.Event)
	}
	if spec.Event == "" {
		return nil, fmt.Errorf("%w: publish needs an event name", ErrAmbiguousProps)
	}
	return &Publish{spec: spec}, nil
}

// MustPublish is NewPublish for static declarations.
func MustPublish(spec PublishSpec) *Publish {
	p, err := NewPublish(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the effective key while mounted.
func (p *Publish) Key() scope.Key { return p.key }

// ScopeNode implements scope.Target.
func (p *Publish) ScopeNode() *scope.Node { return p.node }

// Mount registers the event.
func (p *Publish) Mount(parent scope.Target) error {
	if p.node != nil {
		return ErrAlreadyMounted
	}
	tree, pnode, err := treeOf(parent)
	if err != nil {
		return err
	}
	node := pnode.NewChild("Publish(" + p.spec.Event + ")")
	node.SetOwner(p)

	payload := &PublishPayload{
		Key:       scope.ParseKey(p.spec.Event),
		Global:    p.spec.Global,
		Bare:      p.spec.Bare,
		Publisher: p,
	}
	opts := tree.dispatchOptions([]scope.Option{scope.WithUnhandled(func(*scope.Event) {})})
	if _, err := scope.ActionResult(node, KeyRegisterPublishedEvent, payload, opts...); err != nil {
		node.Detach()
		if errors.Is(err, scope.ErrNoResult) {
			return fmt.Errorf("%w: publish %q", ErrNoReactor, p.spec.Event)
		}
		return err
	}
	p.node = node
	p.key = payload.Key
	return nil
}

// Unmount withdraws the event. Subscribers are told when the last
// publisher of the key goes.
func (p *Publish) Unmount() error {
	if p.node == nil {
		return ErrNotMounted
	}
	payload := &PublishPayload{
		Key:       p.key,
		Global:    p.spec.Global,
		Bare:      p.spec.Bare,
		Publisher: p,
	}
	if _, err := scope.ActionResult(p.node, KeyRemovePublishedEvent, payload, scope.SuppressUnhandled()); err != nil {
		log.Warn(log.CatPubSub, "withdrawing published event failed", "event", p.key.String(), "error", err)
	}
	p.node.Detach()
	p.node = nil
	p.key = scope.Key{}
	return nil
}
