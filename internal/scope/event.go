package scope

import (
	"context"
	"fmt"
)

// Phase is the propagation phase an event is in.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseCapture
	PhaseTarget
	PhaseBubble
)

func (p Phase) String() string {
	switch p {
	case PhaseCapture:
		return "capture"
	case PhaseTarget:
		return "target"
	case PhaseBubble:
		return "bubble"
	default:
		return "none"
	}
}

// Flags are the caller-side dispatch flags carried by every event.
type Flags struct {
	Single   bool // caller wants exactly one responder
	Multiple bool // caller wants every responder; handlers must not stop propagation
	Debug    bool // log each step of the dispatch
	Optional bool // no error when nobody handles the event
}

// Handler responds to an event. The returned value is interpreted by the
// handler wrapper that installed it; raw bindings ignore it.
type Handler func(ev *Event) (any, error)

// Event is the envelope carried through a dispatch walk.
type Event struct {
	Key    Key
	Detail any
	Flags  Flags

	// Result is the return channel used by ActionResult. It holds the
	// pending sentinel until a handler supplies a value.
	Result any

	// HandledBy lists every responder that considered itself the handler.
	HandledBy []string

	Target        *Node
	CurrentTarget *Node
	Phase         Phase

	ctx     context.Context
	stopped bool
}

type pendingResult struct{}

type failedResult struct {
	err error
}

// NewEvent builds an event envelope.
func NewEvent(key Key, detail any, opts ...Option) *Event {
	s := newSettings(opts)
	return &Event{
		Key:    key,
		Detail: detail,
		Flags:  s.flags,
		ctx:    s.ctx,
	}
}

// Context returns the context the event was created with.
func (e *Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// StopPropagation ends the walk after the current node's handlers.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Stopped reports whether propagation was stopped.
func (e *Event) Stopped() bool {
	return e.stopped
}

// MarkHandled records by as a responder.
func (e *Event) MarkHandled(by string) {
	e.HandledBy = append(e.HandledBy, by)
}

// Handled reports whether any responder marked the event.
func (e *Event) Handled() bool {
	return len(e.HandledBy) > 0
}

// AwaitResult places the pending sentinel in Result.
func (e *Event) AwaitResult() {
	e.Result = pendingResult{}
}

// ResultPending reports whether the pending sentinel is still in place.
func (e *Event) ResultPending() bool {
	_, ok := e.Result.(pendingResult)
	return ok
}

// SetResult supplies the return value of a result-returning call.
func (e *Event) SetResult(v any) {
	e.Result = v
}

// Fail supplies an error as the outcome of a result-returning call.
func (e *Event) Fail(err error) {
	e.Result = failedResult{err: err}
}

// ResultErr returns the error supplied through Fail, if any.
func (e *Event) ResultErr() error {
	if f, ok := e.Result.(failedResult); ok {
		return f.err
	}
	return nil
}

func (e *Event) String() string {
	return fmt.Sprintf("%s phase=%s handled=%d", e.Key, e.Phase, len(e.HandledBy))
}
