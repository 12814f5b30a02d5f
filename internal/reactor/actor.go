package reactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// Actor is a named participant inside a reactor. Actions and published
// events declared below it are moved into its name scope, so two actors
// can both register "create" as "books:create" and "members:create".
// Bare and observer actions keep their plain name.
type Actor struct {
	*Listener

	name     string
	parent   scope.Target
	children []Component
	mounted  []Component
	state    MountState
	reactor  *Reactor
}

// NewActor creates an unmounted actor.
func NewActor(name string, children ...Component) *Actor {
	a := &Actor{name: name, children: children}
	a.Listener = NewListener(a)
	a.onDetach = func() { a.state = Unmounted }
	return a
}

// Name returns the actor's scope name.
func (a *Actor) Name() string { return a.name }

// Reactor returns the reactor the actor registered with.
func (a *Actor) Reactor() *Reactor { return a.reactor }

// State returns the lifecycle phase.
func (a *Actor) State() MountState { return a.state }

// UnlistenDelay implements UnlistenDelayer.
func (a *Actor) UnlistenDelay() time.Duration {
	if a.tree == nil {
		return 0
	}
	return a.tree.Config().ActorUnlistenDelay
}

// Add adds children, mounting them at once when the actor is mounted.
func (a *Actor) Add(children ...Component) *Actor {
	a.children = append(a.children, children...)
	if a.state == Ready {
		for _, c := range children {
			if err := c.Mount(a); err != nil {
				log.ErrorErr(log.CatActor, "child failed to mount", err, "actor", a.name, "child", fmt.Sprintf("%T", c))
				scope.RaiseError(a.node, &scope.ErrorDetail{Message: fmt.Sprintf("mounting %T: %v", c, err), Err: err})
				continue
			}
			a.mounted = append(a.mounted, c)
		}
	}
	return a
}

// Mount registers the actor with the nearest reactor and mounts its
// children inside its scope.
func (a *Actor) Mount(parent scope.Target) error {
	if a.name == "" {
		return ErrActorNameRequired
	}
	switch a.state {
	case Unmounted:
	case Unmounting:
		a.UnlistenNow()
	default:
		return ErrAlreadyMounted
	}

	_, pnode, err := treeOf(parent)
	if err != nil {
		return err
	}
	node := pnode.NewChild("Actor("+a.name+")", ActorClass)
	node.SetOwner(a)
	if err := a.Attach(node); err != nil {
		return err
	}
	a.parent = parent
	a.prefix = a.name

	if err := a.installScoping(); err != nil {
		a.UnlistenNow()
		return err
	}

	res, err := a.ActionResult(KeyRegisterActor, &ActorPayload{Name: a.name, Actor: a}, scope.WithUnhandled(func(*scope.Event) {}))
	if err != nil {
		a.UnlistenNow()
		if errors.Is(err, scope.ErrNoResult) {
			return fmt.Errorf("%w: actor %q", ErrNoReactor, a.name)
		}
		return err
	}
	a.reactor, _ = res.(*Reactor)
	a.state = Ready

	mounted, err := mountAll(a, a.children)
	if err != nil {
		a.unregister()
		a.UnlistenNow()
		return err
	}
	a.mounted = mounted
	log.Debug(log.CatActor, "actor mounted", "actor", a.name, "children", len(mounted))
	return nil
}

// installScoping puts the observers that move registrations into the
// actor's scope, and the guard that rejects nested actors.
func (a *Actor) installScoping() error {
	observers := map[scope.Key]scope.Handler{
		KeyRegisterAction:         a.scopeAction,
		KeyRemoveAction:           a.scopeAction,
		KeyRegisterPublishedEvent: a.scopePublished,
		KeyRemovePublishedEvent:   a.scopePublished,
		KeyRegisterActor:          a.rejectNested,
	}
	for key, h := range observers {
		if _, err := a.ListenRaw(nil, key, h, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) scopeAction(ev *scope.Event) (any, error) {
	p, ok := ev.Detail.(*ActionPayload)
	if !ok || p.Bare || p.Observer {
		return nil, nil
	}
	if p.Key.Scope == "" {
		p.Key = p.Key.WithScope(a.name)
	}
	if p.ActorName == "" {
		p.ActorName = a.name
	}
	return nil, nil
}

func (a *Actor) scopePublished(ev *scope.Event) (any, error) {
	p, ok := ev.Detail.(*PublishPayload)
	if !ok || p.Bare {
		return nil, nil
	}
	if p.Key.Scope == "" {
		p.Key = p.Key.WithScope(a.name)
	}
	if p.ActorName == "" {
		p.ActorName = a.name
	}
	return nil, nil
}

func (a *Actor) rejectNested(ev *scope.Event) (any, error) {
	p, ok := ev.Detail.(*ActorPayload)
	if !ok || p.Actor == a {
		return nil, nil
	}
	err := fmt.Errorf("%w: %q inside %q", ErrNestedActor, p.Name, a.name)
	if ev.ResultPending() {
		ev.Fail(err)
	}
	ev.MarkHandled(a.ID())
	ev.StopPropagation()
	return nil, nil
}

// Unmount unmounts the children, unregisters the actor and removes its
// observers after the actor unlisten delay.
func (a *Actor) Unmount() error {
	if a.state != Ready {
		return ErrNotMounted
	}
	a.state = Unmounting
	err := unmountAll(a.mounted)
	a.mounted = nil
	a.unregister()
	a.Unlisten()
	return err
}

func (a *Actor) unregister() {
	_, err := a.ActionResult(KeyRemoveActor, &ActorPayload{Name: a.name, Actor: a}, scope.SuppressUnhandled())
	if err != nil {
		log.Warn(log.CatActor, "actor removal not acknowledged", "actor", a.name, "error", err)
	}
	a.reactor = nil
}
