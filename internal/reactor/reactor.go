package reactor

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
)

// Reactor is the registry scope of a subtree. It answers the protocol
// events raised by the actors, actions, publishers and subscribers mounted
// below it, and fans published events out to their subscribers.
//
// Mounting is phased: the reactor installs its handlers and enters
// DidMount, mounts its early children on the next scheduler tick
// (Mounting) and the rest on the tick after (Ready).
type Reactor struct {
	*Listener

	label         string
	forceRoot     bool
	unlistenDelay time.Duration

	parent  scope.Target
	state   MountState
	timer   scheduler.Timer
	early   []Component
	later   []Component
	mounted []Component

	actions    map[scope.Key]*actionSlot
	actors     map[string]*Actor
	published  map[scope.Key]*publishedEvent
	generation uint64
}

// ReactorOption configures a Reactor.
type ReactorOption func(*Reactor)

// AsRoot makes the reactor answer global events and escalate unmatched
// subscriptions even when nested inside another reactor.
func AsRoot() ReactorOption {
	return func(r *Reactor) { r.forceRoot = true }
}

// WithUnlistenDelay overrides the tree's reactor unlisten delay.
func WithUnlistenDelay(d time.Duration) ReactorOption {
	return func(r *Reactor) { r.unlistenDelay = d }
}

// NewReactor creates an unmounted reactor. label names it in error
// attribution and in the activity stream.
func NewReactor(label string, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		label:         label,
		unlistenDelay: -1,
		actions:       make(map[scope.Key]*actionSlot),
		actors:        make(map[string]*Actor),
		published:     make(map[scope.Key]*publishedEvent),
	}
	r.Listener = NewListener(r)
	r.onDetach = r.detached
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Early adds children mounted in the Mounting phase, before the others.
// Universal actors that other children depend on go here.
func (r *Reactor) Early(children ...Component) *Reactor {
	r.early = append(r.early, children...)
	if r.state == Mounting || r.state == Ready {
		r.mountChildren(children)
	}
	return r
}

// Add adds children mounted in the Ready phase.
func (r *Reactor) Add(children ...Component) *Reactor {
	r.later = append(r.later, children...)
	if r.state == Ready {
		r.mountChildren(children)
	}
	return r
}

// Label returns the reactor's label.
func (r *Reactor) Label() string { return r.label }

// State returns the lifecycle phase.
func (r *Reactor) State() MountState { return r.state }

// UnlistenDelay implements UnlistenDelayer.
func (r *Reactor) UnlistenDelay() time.Duration {
	if r.unlistenDelay >= 0 {
		return r.unlistenDelay
	}
	if r.tree == nil {
		return 0
	}
	return r.tree.Config().UnlistenDelay
}

// Mount installs the reactor under parent and starts the mount phases.
func (r *Reactor) Mount(parent scope.Target) error {
	switch r.state {
	case Unmounted:
	case Unmounting:
		r.UnlistenNow()
	default:
		return ErrAlreadyMounted
	}

	tree, pnode, err := treeOf(parent)
	if err != nil {
		return err
	}
	node := pnode.NewChild(r.label, scope.ReactorClass)
	node.SetOwner(r)
	if err := r.Attach(node); err != nil {
		return err
	}
	r.parent = parent

	handlers := map[scope.Key]func(*scope.Event) error{
		KeyReactorProbe:           r.handleReactorProbe,
		KeyRegisterAction:         r.handleRegisterAction,
		KeyRemoveAction:           r.handleRemoveAction,
		KeyRegisterActor:          r.handleRegisterActor,
		KeyRemoveActor:            r.handleRemoveActor,
		KeyRegisterPublishedEvent: r.handleRegisterPublishedEvent,
		KeyRemovePublishedEvent:   r.handleRemovePublishedEvent,
		KeyRegisterSubscriber:     r.handleRegisterSubscriber,
		KeyRemoveSubscriber:       r.handleRemoveSubscriber,
	}
	for key, h := range handlers {
		if _, err := r.ListenRaw(nil, key, r.internal(h), false); err != nil {
			r.UnlistenNow()
			return err
		}
	}

	r.state = DidMount
	log.Debug(log.CatReactor, "reactor mounted", "reactor", r.label, "root", r.IsRoot())
	r.timer = tree.sched.AfterFunc(0, r.enterMounting)
	return nil
}

func (r *Reactor) enterMounting() {
	if r.state != DidMount {
		return
	}
	r.state = Mounting
	r.mountChildren(r.early)
	r.timer = r.tree.sched.AfterFunc(0, r.enterReady)
}

func (r *Reactor) enterReady() {
	if r.state != Mounting {
		return
	}
	r.state = Ready
	r.timer = nil
	r.mountChildren(r.later)
	r.tree.publish(Activity{Kind: ActivityReactorReady, Reactor: r.label})
	log.Debug(log.CatReactor, "reactor ready", "reactor", r.label,
		"actions", len(r.actions), "actors", len(r.actors), "published", len(r.published))
}

// mountChildren mounts each child; a failing child is reported and skipped.
func (r *Reactor) mountChildren(children []Component) {
	for _, c := range children {
		if err := c.Mount(r); err != nil {
			log.ErrorErr(log.CatReactor, "child failed to mount", err, "reactor", r.label, "child", fmt.Sprintf("%T", c))
			scope.RaiseError(r.node, &scope.ErrorDetail{
				Message: fmt.Sprintf("mounting %T: %v", c, err),
				Err:     err,
			})
			continue
		}
		r.mounted = append(r.mounted, c)
	}
}

// Unmount unmounts the children in reverse order, then removes the
// reactor's handlers after its unlisten delay so late teardown traffic from
// the children is still answered.
func (r *Reactor) Unmount() error {
	if r.state == Unmounted || r.state == Unmounting {
		return ErrNotMounted
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.state = Unmounting

	err := unmountAll(r.mounted)
	r.mounted = nil
	r.tree.publish(Activity{Kind: ActivityReactorUnmounted, Reactor: r.label})
	log.Debug(log.CatReactor, "reactor unmounting", "reactor", r.label, "delay", r.UnlistenDelay())

	r.Unlisten()
	return err
}

// detached runs once the handlers are gone.
func (r *Reactor) detached() {
	r.state = Unmounted
	clear(r.actions)
	clear(r.actors)
	clear(r.published)
	r.generation++
}

// IsRoot reports whether no reactor encloses this one, or AsRoot was set.
func (r *Reactor) IsRoot() bool {
	return r.forceRoot || r.parentReactor() == nil
}

func (r *Reactor) parentReactor() *Reactor {
	if r.node == nil {
		return nil
	}
	parent := r.node.Parent()
	if parent == nil {
		return nil
	}
	n := parent.Closest(scope.ReactorClass)
	if n == nil {
		return nil
	}
	p, _ := n.Owner().(*Reactor)
	return p
}

// internal adapts a protocol handler. A returned error or panic fails the
// caller's ActionResult; the event counts as handled.
func (r *Reactor) internal(h func(*scope.Event) error) scope.Handler {
	return func(ev *scope.Event) (any, error) {
		_, err := invoke(func(ev *scope.Event) (any, error) { return nil, h(ev) }, ev)
		if err != nil {
			log.ErrorErr(log.CatReactor, "protocol request failed", err, "event", ev.Key.String(), "reactor", r.label)
			ev.Fail(err)
			ev.MarkHandled(r.ID())
			ev.StopPropagation()
		}
		return nil, nil
	}
}

// reply answers a protocol request and ends its walk.
func (r *Reactor) reply(ev *scope.Event, v any) {
	if ev.ResultPending() {
		ev.SetResult(v)
	}
	ev.MarkHandled(r.ID())
	ev.StopPropagation()
}

func (r *Reactor) handleReactorProbe(ev *scope.Event) error {
	answer := r
	if p, ok := ev.Detail.(*ProbePayload); ok && p.Accept != nil {
		if answer = p.Accept(r); answer == nil {
			return nil
		}
	}
	r.reply(ev, answer)
	return nil
}

// Call runs the action registered for key in this reactor or the nearest
// enclosing one that has it, synchronously and without a dispatch walk.
// Observers in the slot are notified; the first other entry answers.
func (r *Reactor) Call(key scope.Key, detail any) (any, error) {
	if r.node == nil {
		return nil, ErrNotMounted
	}
	for cur := r; cur != nil; cur = cur.parentReactor() {
		if slot, ok := cur.actions[key]; ok {
			return cur.callSlot(slot, key, detail)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActionNotFound, key)
}

func (r *Reactor) callSlot(slot *actionSlot, key scope.Key, detail any) (any, error) {
	ev := scope.NewEvent(key, detail, scope.Single())
	ev.Target = r.node
	ev.CurrentTarget = r.node

	var (
		out      any
		callErr  error
		answered bool
	)
	for _, reg := range slices.Clone(slot.entries) {
		if reg.Observer {
			_, _ = reg.wrapped(ev)
			continue
		}
		if answered {
			continue
		}
		answered = true
		if !reg.ReturnsResult {
			out, callErr = invoke(reg.handler, ev)
			continue
		}
		ev.AwaitResult()
		_, _ = reg.wrapped(ev)
		switch {
		case ev.ResultErr() != nil:
			callErr = ev.ResultErr()
		case ev.ResultPending():
			callErr = fmt.Errorf("%w: %s", scope.ErrNoResult, key)
		default:
			out = ev.Result
		}
	}
	if !answered {
		return nil, fmt.Errorf("%w: %s has only observers", ErrActionNotFound, key)
	}
	return out, callErr
}

// Actor returns the actor registered under name.
func (r *Reactor) Actor(name string) (*Actor, bool) {
	a, ok := r.actors[name]
	return a, ok
}

// ActionKeys returns the registered action keys in string order.
func (r *Reactor) ActionKeys() []scope.Key {
	return sortedKeys(r.actions)
}

// PublishedKeys returns the published event keys in string order.
func (r *Reactor) PublishedKeys() []scope.Key {
	return sortedKeys(r.published)
}

// SubscriberCount returns how many subscribers the published event key has.
func (r *Reactor) SubscriberCount(key scope.Key) int {
	if pe, ok := r.published[key]; ok {
		return len(pe.subscribers)
	}
	return 0
}

func sortedKeys[V any](m map[scope.Key]V) []scope.Key {
	keys := make([]scope.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b scope.Key) int {
		return cmp.Compare(a.String(), b.String())
	})
	return keys
}
