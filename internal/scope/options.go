package scope

import "context"

// Option configures event construction and dispatch.
type Option func(*settings)

type settings struct {
	flags       Flags
	ctx         context.Context
	onUnhandled func(*Event)
	suppress    bool
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// Single asks for exactly one responder.
func Single() Option {
	return func(s *settings) { s.flags.Single = true }
}

// Multiple asks every responder to let the event keep propagating.
func Multiple() Option {
	return func(s *settings) { s.flags.Multiple = true }
}

// Debug logs the dispatch.
func Debug() Option {
	return func(s *settings) { s.flags.Debug = true }
}

// Optional silences the unhandled report.
func Optional() Option {
	return func(s *settings) { s.flags.Optional = true }
}

// WithFlags replaces every flag at once.
func WithFlags(f Flags) Option {
	return func(s *settings) { s.flags = f }
}

// WithContext attaches ctx to the event; tracing spans use it as parent.
func WithContext(ctx context.Context) Option {
	return func(s *settings) { s.ctx = ctx }
}

// WithUnhandled calls fn instead of raising an error event when nobody
// handles the dispatch.
func WithUnhandled(fn func(*Event)) Option {
	return func(s *settings) { s.onUnhandled = fn }
}

// SuppressUnhandled drops the unhandled report entirely.
func SuppressUnhandled() Option {
	return func(s *settings) { s.suppress = true }
}
