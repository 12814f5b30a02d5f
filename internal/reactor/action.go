package reactor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// ActionSpec declares one action. Handlers holds exactly one entry: the
// action name and its handler.
type ActionSpec struct {
	Handlers map[string]scope.Handler

	Bare          bool
	Observer      bool
	ReturnsResult bool
	IsAsync       bool
	Capture       bool
}

// Handle returns a spec with the single handler h for name.
func Handle(name string, h scope.Handler) ActionSpec {
	return ActionSpec{Handlers: map[string]scope.Handler{name: h}}
}

func (s ActionSpec) single() (string, scope.Handler, error) {
	if len(s.Handlers) != 1 {
		return "", nil, fmt.Errorf("%w: action has %d handlers", ErrAmbiguousProps, len(s.Handlers))
	}
	for name, h := range s.Handlers {
		if name == "" || h == nil {
			return "", nil, fmt.Errorf("%w: action name or handler missing", ErrAmbiguousProps)
		}
		return name, h, nil
	}
	return "", nil, ErrAmbiguousProps
}

// Action registers one handler with the nearest reactor while mounted.
type Action struct {
	spec    ActionSpec
	name    string
	handler scope.Handler

	node *scope.Node
	reg  *ActionRegistration
}

// NewAction validates spec and returns an unmounted action.
func NewAction(spec ActionSpec) (*Action, error) {
	name, h, err := spec.single()
	if err != nil {
		return nil, err
	}
	return &Action{spec: spec, name: name, handler: h}, nil
}

// MustAction is NewAction for static declarations.
func MustAction(spec ActionSpec) *Action {
	a, err := NewAction(spec)
	if err != nil {
		panic(err)
	}
	return a
}

// Registration returns the effective registration while mounted.
func (a *Action) Registration() *ActionRegistration { return a.reg }

// ScopeNode implements scope.Target.
func (a *Action) ScopeNode() *scope.Node { return a.node }

// Mount registers the action. The nearest actor, if any, moves the name
// into its scope on the way up.
func (a *Action) Mount(parent scope.Target) error {
	if a.reg != nil {
		return ErrAlreadyMounted
	}
	tree, pnode, err := treeOf(parent)
	if err != nil {
		return err
	}
	node := pnode.NewChild("Action(" + a.name + ")")
	node.SetOwner(a)

	payload := &ActionPayload{
		Key:           scope.ParseKey(a.name),
		Handler:       a.handler,
		Instance:      a,
		Bare:          a.spec.Bare,
		Observer:      a.spec.Observer,
		ReturnsResult: a.spec.ReturnsResult,
		IsAsync:       a.spec.IsAsync,
		Capture:       a.spec.Capture,
	}
	opts := tree.dispatchOptions([]scope.Option{scope.WithUnhandled(func(*scope.Event) {})})
	res, err := scope.ActionResult(node, KeyRegisterAction, payload, opts...)
	if err != nil {
		node.Detach()
		if errors.Is(err, scope.ErrNoResult) {
			return fmt.Errorf("%w: action %q", ErrNoReactor, a.name)
		}
		return err
	}
	reg, ok := res.(*ActionRegistration)
	if !ok {
		node.Detach()
		return fmt.Errorf("%w: registerAction answered %T", ErrBadPayload, res)
	}
	a.node = node
	a.reg = reg
	return nil
}

// Update replaces the spec of a mounted action. Only the same handler is
// accepted: a handler cannot be swapped without remounting.
func (a *Action) Update(spec ActionSpec) error {
	name, h, err := spec.single()
	if err != nil {
		return err
	}
	if name != a.name || !sameFunc(h, a.handler) {
		return fmt.Errorf("%w: %s", ErrHandlerChanged, a.name)
	}
	a.spec = spec
	return nil
}

// Unmount removes the registration. A failed removal is logged; the action
// is detached either way.
func (a *Action) Unmount() error {
	if a.reg == nil {
		return ErrNotMounted
	}
	reg := a.reg
	payload := &ActionPayload{
		Key:          reg.Key,
		ActorName:    reg.ActorName,
		Handler:      a.handler,
		Instance:     a,
		Bare:         reg.Bare,
		Observer:     reg.Observer,
		Registration: reg,
	}
	if _, err := scope.ActionResult(a.node, KeyRemoveAction, payload, scope.SuppressUnhandled()); err != nil {
		log.Warn(log.CatAction, "action removal failed", "action", reg.Key.String(), "error", err)
	}
	a.node.Detach()
	a.node = nil
	a.reg = nil
	return nil
}

func sameFunc(a, b scope.Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
