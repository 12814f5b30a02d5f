package reactor

import (
	"fmt"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

func (r *Reactor) handleRegisterActor(ev *scope.Event) error {
	p, ok := ev.Detail.(*ActorPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	if p.Name == "" {
		return ErrActorNameRequired
	}
	if existing, ok := r.actors[p.Name]; ok && existing != p.Actor {
		return fmt.Errorf("%w: %q in %s", ErrDuplicateActor, p.Name, r.label)
	}

	r.actors[p.Name] = p.Actor
	r.tree.publish(Activity{Kind: ActivityActorAdded, Reactor: r.label, Message: p.Name})
	log.Debug(log.CatActor, "actor registered", "actor", p.Name, "reactor", r.label)
	r.reply(ev, r)
	return nil
}

// handleRemoveActor never fails: removing an actor the reactor does not
// know is logged and answered with false.
func (r *Reactor) handleRemoveActor(ev *scope.Event) error {
	p, ok := ev.Detail.(*ActorPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	existing, ok := r.actors[p.Name]
	if !ok || (p.Actor != nil && existing != p.Actor) {
		log.Warn(log.CatActor, "removing unknown actor", "actor", p.Name, "reactor", r.label)
		r.reply(ev, false)
		return nil
	}

	delete(r.actors, p.Name)
	r.tree.publish(Activity{Kind: ActivityActorRemoved, Reactor: r.label, Message: p.Name})
	r.reply(ev, true)
	return nil
}
