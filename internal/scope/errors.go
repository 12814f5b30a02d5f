package scope

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTarget is returned when a dispatch target does not resolve to a node.
var ErrNoTarget = errors.New("dispatch target has no scope node")

// ErrUnhandled marks error events raised for dispatches nobody handled.
var ErrUnhandled = errors.New("event was not handled")

// ErrNoResult is returned by ActionResult when no handler supplied a value.
var ErrNoResult = errors.New("no handler returned a result")

// ErrorDetail is the payload of an error event.
type ErrorDetail struct {
	Message    string
	Err        error
	Source     Key      // the event whose handling failed
	Reactor    string   // label of the nearest reactor node
	Stack      []string // call stack with dispatch frames removed
	Candidates []string // near-miss event names, when relevant
}

func (d *ErrorDetail) Error() string {
	var b strings.Builder
	b.WriteString(d.Message)
	if d.Reactor != "" {
		fmt.Fprintf(&b, " (in %s)", d.Reactor)
	}
	if len(d.Candidates) > 0 {
		fmt.Fprintf(&b, "; did you mean: %s?", strings.Join(d.Candidates, ", "))
	}
	return b.String()
}

func (d *ErrorDetail) Unwrap() error {
	return d.Err
}
