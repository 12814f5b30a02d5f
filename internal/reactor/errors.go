package reactor

import "errors"

// Registration and lifecycle errors. Operations that return one of these
// leave the registries unchanged.
var (
	ErrNoTree            = errors.New("component is not mounted inside a tree")
	ErrNoReactor         = errors.New("no enclosing reactor answered")
	ErrNotMounted        = errors.New("component is not mounted")
	ErrAlreadyMounted    = errors.New("component is already mounted")
	ErrNoUnlistenDelay   = errors.New("listener owner provides no unlisten delay")
	ErrBadPayload        = errors.New("unexpected payload type")
	ErrMissingHandler    = errors.New("registration has no handler")
	ErrMissingName       = errors.New("registration has no event name")
	ErrDuplicateAction   = errors.New("action is already registered")
	ErrActionNotFound    = errors.New("action is not registered")
	ErrInstanceRequired  = errors.New("removing from a shared action slot requires the registering instance")
	ErrHandlerMismatch   = errors.New("registration does not match the installed handler")
	ErrActorNameRequired = errors.New("actor requires a name")
	ErrDuplicateActor    = errors.New("actor name is already registered in this reactor")
	ErrNestedActor       = errors.New("actors cannot be nested inside actors")
	ErrEventNotPublished = errors.New("no publisher for event")
	ErrAmbiguousProps    = errors.New("element needs exactly one event name and handler")
	ErrHandlerChanged    = errors.New("action handler cannot change after mount")
	ErrResultNotAwaited  = errors.New("result-returning handler called without a pending result")
	ErrNilResult         = errors.New("result-returning handler returned nil")
	ErrHandlerPanic      = errors.New("handler panicked")
)
