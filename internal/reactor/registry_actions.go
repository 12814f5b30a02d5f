package reactor

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/google/uuid"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// ActionRegistration is the effective handler a reactor installed for one
// registerAction request. It is the identity used on removal.
type ActionRegistration struct {
	ID        string
	Key       scope.Key
	ActorName string
	Instance  any

	Bare          bool
	Observer      bool
	ReturnsResult bool
	IsAsync       bool

	handler scope.Handler
	wrapped scope.Handler
	reactor *Reactor
}

// Reactor returns the reactor holding the registration.
func (a *ActionRegistration) Reactor() *Reactor { return a.reactor }

func (a *ActionRegistration) exclusive() bool {
	return !a.Bare && !a.Observer
}

// actionSlot holds every registration for one key. A slot with a single
// exclusive registration is single; any bare or observer registration
// makes it multi, and multi slots keep at most one exclusive entry.
type actionSlot struct {
	multi   bool
	entries []*ActionRegistration
	binding *scope.Binding
}

func (s *actionSlot) exclusiveEntry() *ActionRegistration {
	for _, e := range s.entries {
		if e.exclusive() {
			return e
		}
	}
	return nil
}

func (r *Reactor) handleRegisterAction(ev *scope.Event) error {
	p, ok := ev.Detail.(*ActionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	if p.Handler == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, p.Key)
	}
	if p.Key.IsZero() {
		return ErrMissingName
	}

	reg := &ActionRegistration{
		ID:            uuid.NewString(),
		Key:           p.Key,
		ActorName:     p.ActorName,
		Instance:      p.Instance,
		Bare:          p.Bare,
		Observer:      p.Observer,
		ReturnsResult: p.ReturnsResult,
		IsAsync:       p.IsAsync,
		handler:       p.Handler,
		reactor:       r,
	}
	reg.wrapped = r.WrapHandler(p.Handler, HandlerOptions{
		ReturnsResult: p.ReturnsResult,
		IsAsync:       p.IsAsync,
		Observer:      p.Observer,
		Exclusive:     reg.exclusive(),
		Responder:     reg.ID,
	})

	slot := r.actions[p.Key]
	switch {
	case slot == nil:
		b, err := r.ListenRaw(nil, p.Key, r.handleAction(p.Key), p.Capture)
		if err != nil {
			return err
		}
		r.actions[p.Key] = &actionSlot{
			multi:   !reg.exclusive(),
			entries: []*ActionRegistration{reg},
			binding: b,
		}
	case reg.exclusive() && slot.exclusiveEntry() != nil:
		return fmt.Errorf("%w: %s in %s", ErrDuplicateAction, p.Key, r.label)
	default:
		if !slot.multi {
			log.Debug(log.CatAction, "action slot shared", "action", p.Key.String(), "reactor", r.label)
		}
		slot.multi = true
		slot.entries = append(slot.entries, reg)
	}

	r.tree.publish(Activity{Kind: ActivityActionAdded, Reactor: r.label, Key: p.Key, Message: reg.describe()})
	r.reply(ev, reg)
	return nil
}

func (r *Reactor) handleRemoveAction(ev *scope.Event) error {
	p, ok := ev.Detail.(*ActionPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	slot := r.actions[p.Key]
	if slot == nil {
		return fmt.Errorf("%w: %s in %s", ErrActionNotFound, p.Key, r.label)
	}

	if slot.multi {
		if p.Instance == nil {
			return fmt.Errorf("%w: %s", ErrInstanceRequired, p.Key)
		}
		idx := slices.IndexFunc(slot.entries, func(e *ActionRegistration) bool {
			return sameInstance(e.Instance, p.Instance)
		})
		if idx < 0 {
			return fmt.Errorf("%w: %s has no entry for %T", ErrActionNotFound, p.Key, p.Instance)
		}
		if p.Registration != nil && slot.entries[idx] != p.Registration {
			return fmt.Errorf("%w: %s", ErrHandlerMismatch, p.Key)
		}
		slot.entries = slices.Delete(slot.entries, idx, idx+1)
		if len(slot.entries) > 0 {
			r.tree.publish(Activity{Kind: ActivityActionRemoved, Reactor: r.label, Key: p.Key, Message: "shared entry"})
			r.reply(ev, true)
			return nil
		}
	} else {
		installed := slot.entries[0]
		if p.Registration != nil && installed != p.Registration {
			return fmt.Errorf("%w: %s", ErrHandlerMismatch, p.Key)
		}
		if p.Instance != nil && !sameInstance(installed.Instance, p.Instance) {
			return fmt.Errorf("%w: %s", ErrHandlerMismatch, p.Key)
		}
	}

	r.StopListening(slot.binding)
	delete(r.actions, p.Key)
	r.tree.publish(Activity{Kind: ActivityActionRemoved, Reactor: r.label, Key: p.Key})
	r.reply(ev, true)
	return nil
}

// handleAction runs every registration in the slot for key, in
// registration order.
func (r *Reactor) handleAction(key scope.Key) scope.Handler {
	return func(ev *scope.Event) (any, error) {
		slot := r.actions[key]
		if slot == nil {
			return nil, nil
		}
		for _, reg := range slices.Clone(slot.entries) {
			// A result already supplied leaves nothing for a second answerer.
			if reg.ReturnsResult && ev.Result != nil && !ev.ResultPending() {
				continue
			}
			_, _ = reg.wrapped(ev)
		}
		return nil, nil
	}
}

func (a *ActionRegistration) describe() string {
	switch {
	case a.Observer:
		return "observer"
	case a.Bare:
		return "bare"
	case a.ReturnsResult:
		return "returns result"
	default:
		return ""
	}
}

// sameInstance compares registrants without panicking on uncomparable
// dynamic types.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
