package reactor

import (
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
)

// UnlistenDelayer is implemented by every type composing a Listener. The
// delay is how long handlers stay installed after Unlisten.
type UnlistenDelayer interface {
	UnlistenDelay() time.Duration
}

// HandlerOptions describe how a wrapped handler treats its event.
type HandlerOptions struct {
	ReturnsResult bool   // handler answers an ActionResult call
	IsAsync       bool   // a channel or func result is expected
	Observer      bool   // never marks handled, never stops propagation
	Exclusive     bool   // stops propagation once handled
	Capture       bool   // runs in the capture phase
	Responder     string // id recorded in HandledBy; the listener's id when empty
}

func (o HandlerOptions) responder(fallback string) string {
	if o.Responder != "" {
		return o.Responder
	}
	return fallback
}

// Listener is the per-component handler table: every binding a component
// installs is tracked so it can be removed in one go.
type Listener struct {
	id     string
	owner  UnlistenDelayer
	prefix string

	tree *Tree
	node *scope.Node

	listening map[scope.Key]map[*scope.Binding]struct{}
	pending   scheduler.Timer
	onDetach  func()
}

// NewListener returns a listener whose delays come from owner. A nil owner
// is allowed for raw use; Listen then fails.
func NewListener(owner UnlistenDelayer) *Listener {
	return &Listener{
		id:        uuid.NewString(),
		owner:     owner,
		listening: make(map[scope.Key]map[*scope.Binding]struct{}),
	}
}

// ID identifies the listener in Event.HandledBy.
func (l *Listener) ID() string { return l.id }

// EventPrefix is the scope Notify puts published event names in.
func (l *Listener) EventPrefix() string { return l.prefix }

// ScopeNode implements scope.Target.
func (l *Listener) ScopeNode() *scope.Node { return l.node }

// Attach binds the listener to its own node inside a tree.
func (l *Listener) Attach(target scope.Target) error {
	tree, node, err := treeOf(target)
	if err != nil {
		return err
	}
	l.tree = tree
	l.node = node
	return nil
}

// Tree returns the tree the listener is attached to.
func (l *Listener) Tree() *Tree { return l.tree }

// Listen installs h wrapped per opts. at defaults to the listener's node.
func (l *Listener) Listen(at scope.Target, key scope.Key, h scope.Handler, opts HandlerOptions) (*scope.Binding, error) {
	if l.owner == nil {
		return nil, ErrNoUnlistenDelay
	}
	if h == nil {
		return nil, ErrMissingHandler
	}
	return l.ListenRaw(at, key, l.WrapHandler(h, opts), opts.Capture)
}

// ListenRaw installs h as is. The handler is fully responsible for marking
// and stopping the event.
func (l *Listener) ListenRaw(at scope.Target, key scope.Key, h scope.Handler, capture bool) (*scope.Binding, error) {
	node := l.node
	if at != nil {
		node = at.ScopeNode()
	}
	if node == nil {
		return nil, ErrNotMounted
	}
	b := node.AddListener(key, h, capture)
	set := l.listening[key]
	if set == nil {
		set = make(map[*scope.Binding]struct{})
		l.listening[key] = set
	}
	set[b] = struct{}{}
	return b, nil
}

// StopListening removes a single binding installed by this listener.
func (l *Listener) StopListening(b *scope.Binding) bool {
	if b == nil {
		return false
	}
	set, ok := l.listening[b.Key()]
	if !ok {
		return false
	}
	if _, ok := set[b]; !ok {
		return false
	}
	delete(set, b)
	if len(set) == 0 {
		delete(l.listening, b.Key())
	}
	return b.Node().RemoveListener(b)
}

// ListeningCount returns how many bindings are installed.
func (l *Listener) ListeningCount() int {
	n := 0
	for _, set := range l.listening {
		n += len(set)
	}
	return n
}

// Unlisten removes every binding and detaches the listener's node after
// the owner's unlisten delay. Repeated calls share one timer.
func (l *Listener) Unlisten() {
	if l.pending != nil {
		return
	}
	var delay time.Duration
	if l.owner != nil {
		delay = l.owner.UnlistenDelay()
	}
	if l.tree == nil || delay <= 0 {
		l.UnlistenNow()
		return
	}
	l.pending = l.tree.sched.AfterFunc(delay, func() {
		l.pending = nil
		l.UnlistenNow()
	})
}

// UnlistenNow removes every binding and detaches the listener's node
// immediately, cancelling a pending Unlisten.
func (l *Listener) UnlistenNow() {
	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
	listening := l.listening
	l.listening = make(map[scope.Key]map[*scope.Binding]struct{})
	for _, set := range listening {
		for b := range maps.Keys(set) {
			b.Node().RemoveListener(b)
		}
	}
	if l.node != nil {
		l.node.Detach()
	}
	if l.onDetach != nil {
		l.onDetach()
	}
}

// Trigger dispatches key from the listener's node.
func (l *Listener) Trigger(key scope.Key, detail any, opts ...scope.Option) (*scope.Event, error) {
	if l.node == nil {
		return nil, ErrNotMounted
	}
	return scope.Trigger(l.node, key, detail, l.tree.dispatchOptions(opts)...)
}

// Notify triggers name inside the listener's event prefix.
func (l *Listener) Notify(name string, detail any, opts ...scope.Option) (*scope.Event, error) {
	key := scope.Named(name)
	if l.prefix != "" {
		key = key.WithScope(l.prefix)
	}
	return l.Trigger(key, detail, opts...)
}

// ActionResult calls key from the listener's node and returns its result.
func (l *Listener) ActionResult(key scope.Key, detail any, opts ...scope.Option) (any, error) {
	if l.node == nil {
		return nil, ErrNotMounted
	}
	return scope.ActionResult(l.node, key, detail, l.tree.dispatchOptions(opts)...)
}

// WrapHandler adapts h to the propagation rules:
//   - a result-returning handler needs a pending result and must return
//     non-nil; its value becomes the result and the walk stops
//   - observers neither mark the event nor stop it
//   - other handlers mark the event, and stop it when the caller asked for
//     a single responder, the return value is truthy or the registration
//     is exclusive, unless the caller asked for multiple responders
//   - errors and panics are logged and raised as an error event at the
//     event's target
func (l *Listener) WrapHandler(h scope.Handler, opts HandlerOptions) scope.Handler {
	return func(ev *scope.Event) (any, error) {
		if opts.ReturnsResult && !ev.ResultPending() {
			l.internalError(ev, fmt.Errorf("%w: %s", ErrResultNotAwaited, ev.Key), opts)
			return nil, nil
		}

		v, err := invoke(h, ev)
		if err != nil {
			l.handlerFailed(ev, err, opts)
			return nil, nil
		}

		if opts.ReturnsResult {
			if v == nil {
				l.handlerFailed(ev, fmt.Errorf("%w: %s", ErrNilResult, ev.Key), opts)
				return nil, nil
			}
			if isAsyncValue(v) && !opts.IsAsync {
				log.Warn(log.CatAction, "handler returned a channel or func without IsAsync",
					"event", ev.Key.String(), "type", fmt.Sprintf("%T", v))
			}
			ev.SetResult(v)
			ev.MarkHandled(opts.responder(l.id))
			ev.StopPropagation()
			return v, nil
		}

		if opts.Observer {
			return v, nil
		}
		ev.MarkHandled(opts.responder(l.id))
		if !ev.Flags.Multiple && (ev.Flags.Single || opts.Exclusive || truthy(v)) {
			ev.StopPropagation()
		}
		return v, nil
	}
}

func (l *Listener) handlerFailed(ev *scope.Event, err error, opts HandlerOptions) {
	log.ErrorErr(log.CatAction, "handler failed", err, "event", ev.Key.String(), "listener", l.id)
	scope.MarkSpanError(ev, err)
	if !opts.Observer {
		ev.MarkHandled(opts.responder(l.id))
		ev.StopPropagation()
	}
	if ev.ResultPending() {
		ev.Fail(err)
	}
	if ev.Key == scope.KeyError {
		return
	}
	scope.RaiseError(ev.Target, &scope.ErrorDetail{
		Message: fmt.Sprintf("handler for %q failed: %v", ev.Key.String(), err),
		Err:     err,
		Source:  ev.Key,
	})
}

// internalError reports a misuse of the wrapper itself. The event counts as
// handled so no second unhandled report follows.
func (l *Listener) internalError(ev *scope.Event, err error, opts HandlerOptions) {
	log.ErrorErr(log.CatAction, "internal handler error", err, "event", ev.Key.String(), "listener", l.id)
	ev.MarkHandled(opts.responder(l.id))
	ev.StopPropagation()
	scope.RaiseError(ev.Target, &scope.ErrorDetail{
		Message: err.Error(),
		Err:     err,
		Source:  ev.Key,
	})
}

// invoke calls h, turning a panic into ErrHandlerPanic.
func invoke(h scope.Handler, ev *scope.Event) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ev)
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	return !reflect.ValueOf(v).IsZero()
}

func isAsyncValue(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}
