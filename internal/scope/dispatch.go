package scope

import (
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/tracing"
)

type tracerKey struct{}

// TracerKey is the node value key under which a trace.Tracer is looked up.
// Install it on the root to get one span per dispatch.
var TracerKey = tracerKey{}

// Dispatch walks ev through the tree: capture handlers from the root down to
// n's parent, every handler on n, then bubble handlers from n's parent up to
// the root. The path is fixed when the walk starts. A stopped event ends the
// walk after the current node.
func (n *Node) Dispatch(ev *Event) *Event {
	ev.Target = n
	ev.stopped = false

	span := n.startSpan(ev)
	if span != nil {
		defer func() {
			span.SetAttributes(
				attribute.Int(tracing.AttrEventHandledBy, len(ev.HandledBy)),
				attribute.Bool(tracing.AttrEventStopped, ev.stopped),
			)
			span.End()
		}()
	}

	if ev.Flags.Debug {
		log.Debug(log.CatDispatch, "dispatch", "event", ev.Key.String(), "target", n.label)
	}

	path := n.Path()
	ancestors := path[:len(path)-1]

	ev.Phase = PhaseCapture
	for _, anc := range ancestors {
		anc.invoke(ev, func(b *Binding) bool { return b.capture })
		if ev.stopped {
			return ev
		}
	}

	ev.Phase = PhaseTarget
	n.invoke(ev, func(*Binding) bool { return true })
	if ev.stopped {
		return ev
	}

	ev.Phase = PhaseBubble
	for i := len(ancestors) - 1; i >= 0; i-- {
		ancestors[i].invoke(ev, func(b *Binding) bool { return !b.capture })
		if ev.stopped {
			return ev
		}
	}
	return ev
}

func (n *Node) invoke(ev *Event, match func(*Binding) bool) {
	list := n.bindings[ev.Key]
	if len(list) == 0 {
		return
	}
	// Handlers may add or remove bindings while running.
	for _, b := range slices.Clone(list) {
		if b.removed || !match(b) {
			continue
		}
		ev.CurrentTarget = n
		if ev.Flags.Debug {
			log.Debug(log.CatDispatch, "invoke", "event", ev.Key.String(), "node", n.label, "phase", ev.Phase.String())
		}
		callRaw(b, ev)
	}
}

// callRaw runs a binding. Raw handlers are expected to be wrapped by a
// listener; anything escaping here is logged and the walk continues.
func callRaw(b *Binding, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatDispatch, "handler panicked", "event", ev.Key.String(), "node", b.node.label, "panic", r)
		}
	}()
	if _, err := b.handler(ev); err != nil {
		log.ErrorErr(log.CatDispatch, "handler failed", err, "event", ev.Key.String(), "node", b.node.label)
	}
}

func (n *Node) startSpan(ev *Event) trace.Span {
	v, ok := n.Lookup(TracerKey)
	if !ok {
		return nil
	}
	tracer, ok := v.(trace.Tracer)
	if !ok || tracer == nil {
		return nil
	}
	ctx, span := tracer.Start(ev.Context(), tracing.SpanPrefixDispatch+ev.Key.String(),
		trace.WithAttributes(
			attribute.String(tracing.AttrEventKey, ev.Key.String()),
			attribute.String(tracing.AttrEventTarget, n.label),
			attribute.Bool(tracing.AttrEventSingle, ev.Flags.Single),
			attribute.Bool(tracing.AttrEventMultiple, ev.Flags.Multiple),
		),
	)
	ev.ctx = ctx
	return span
}

func resolve(target Target) (*Node, error) {
	if target == nil {
		return nil, ErrNoTarget
	}
	n := target.ScopeNode()
	if n == nil {
		return nil, ErrNoTarget
	}
	return n, nil
}

// Trigger builds an event and dispatches it at target.
func Trigger(target Target, key Key, detail any, opts ...Option) (*Event, error) {
	return DispatchTo(target, NewEvent(key, detail, opts...), opts...)
}

// DispatchTo dispatches ev at target and reports it when nobody handled it.
// The report is, in order of preference: nothing when SuppressUnhandled or
// the Optional flag is set, the WithUnhandled callback, or an error event
// raised at the same target.
func DispatchTo(target Target, ev *Event, opts ...Option) (*Event, error) {
	n, err := resolve(target)
	if err != nil {
		return ev, fmt.Errorf("dispatch %s: %w", ev.Key, err)
	}
	s := newSettings(opts)

	n.Dispatch(ev)
	if ev.Handled() {
		return ev, nil
	}

	switch {
	case s.suppress || ev.Flags.Optional:
		log.Debug(log.CatDispatch, "unhandled event ignored", "event", ev.Key.String(), "target", n.label)
	case s.onUnhandled != nil:
		s.onUnhandled(ev)
	case ev.Key == KeyError:
		reportLastResort(n, ev)
	default:
		RaiseError(n, &ErrorDetail{
			Message: fmt.Sprintf("no handler for event %q", ev.Key.String()),
			Err:     ErrUnhandled,
			Source:  ev.Key,
			Stack:   FriendlyStack(0),
		})
	}
	return ev, nil
}

// RaiseError dispatches an error event at target. Missing attribution and
// stack are filled in. An error event nobody handles is logged.
func RaiseError(target Target, detail *ErrorDetail) *Event {
	n, err := resolve(target)
	if err != nil {
		log.ErrorErr(log.CatDispatch, "cannot raise error event", err, "message", detail.Message)
		return nil
	}
	if detail.Reactor == "" {
		if r := n.Closest(ReactorClass); r != nil {
			detail.Reactor = r.label
		}
	}
	if detail.Stack == nil {
		detail.Stack = FriendlyStack(0)
	}
	ev := NewEvent(KeyError, detail)
	n.Dispatch(ev)
	if !ev.Handled() {
		reportLastResort(n, ev)
	}
	return ev
}

func reportLastResort(n *Node, ev *Event) {
	msg := fmt.Sprintf("%v", ev.Detail)
	if d, ok := ev.Detail.(*ErrorDetail); ok {
		msg = d.Error()
		top := ""
		if len(d.Stack) > 0 {
			top = d.Stack[0]
		}
		log.Warn(log.CatDispatch, "unhandled error event", "message", msg, "source", d.Source.String(), "at", top, "target", n.label)
		return
	}
	log.Warn(log.CatDispatch, "unhandled error event", "message", msg, "target", n.label)
}

// ActionResult performs a synchronous call over the event transport: it
// places the pending sentinel, dispatches with the Single flag and returns
// whatever the responder put into Result.
func ActionResult(target Target, key Key, detail any, opts ...Option) (any, error) {
	ev := NewEvent(key, detail, opts...)
	ev.Flags.Single = true
	ev.AwaitResult()

	if _, err := DispatchTo(target, ev, opts...); err != nil {
		return nil, err
	}
	if err := ev.ResultErr(); err != nil {
		return nil, err
	}
	if ev.ResultPending() {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, key)
	}
	return ev.Result, nil
}

// MarkSpanError records err on the dispatch span of ev, if one is recording.
func MarkSpanError(ev *Event, err error) {
	span := trace.SpanFromContext(ev.Context())
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
