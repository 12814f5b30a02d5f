package reactor

import (
	"fmt"
	"slices"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// publishedEvent is one key this reactor fans out. The fan-out binding
// lives as long as at least one publisher does.
type publishedEvent struct {
	key         scope.Key
	global      bool
	publishers  []any
	subscribers []*Subscription
	binding     *scope.Binding
}

func (r *Reactor) handleRegisterPublishedEvent(ev *scope.Event) error {
	p, ok := ev.Detail.(*PublishPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	if p.Key.IsZero() {
		return ErrMissingName
	}
	if p.Global && !r.IsRoot() {
		return nil
	}

	pe := r.published[p.Key]
	if pe == nil {
		b, err := r.ListenRaw(nil, p.Key, r.handlePublished(p.Key), false)
		if err != nil {
			return err
		}
		pe = &publishedEvent{key: p.Key, global: p.Global, binding: b}
		r.published[p.Key] = pe
		r.generation++
		r.tree.publish(Activity{Kind: ActivityEventPublished, Reactor: r.label, Key: p.Key})
	}
	if !slices.ContainsFunc(pe.publishers, func(x any) bool { return sameInstance(x, p.Publisher) }) {
		pe.publishers = append(pe.publishers, p.Publisher)
	}
	r.reply(ev, true)
	return nil
}

func (r *Reactor) handleRemovePublishedEvent(ev *scope.Event) error {
	p, ok := ev.Detail.(*PublishPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	pe := r.published[p.Key]
	if pe == nil {
		if p.Global && !r.IsRoot() {
			return nil
		}
		log.Warn(log.CatPubSub, "removing unpublished event", "event", p.Key.String(), "reactor", r.label)
		r.reply(ev, false)
		return nil
	}

	idx := slices.IndexFunc(pe.publishers, func(x any) bool { return sameInstance(x, p.Publisher) })
	if idx < 0 {
		log.Warn(log.CatPubSub, "removing unknown publisher", "event", p.Key.String(), "reactor", r.label)
		r.reply(ev, false)
		return nil
	}
	pe.publishers = slices.Delete(pe.publishers, idx, idx+1)
	if len(pe.publishers) > 0 {
		r.reply(ev, true)
		return nil
	}

	r.StopListening(pe.binding)
	delete(r.published, p.Key)
	r.generation++
	r.tree.publish(Activity{Kind: ActivityEventWithdrawn, Reactor: r.label, Key: p.Key})
	r.reply(ev, true)

	for _, sub := range pe.subscribers {
		sub.publisherGone(p.Key)
	}
	return nil
}

// handlePublished fans a published event out to its subscribers in
// subscription order.
func (r *Reactor) handlePublished(key scope.Key) scope.Handler {
	return func(ev *scope.Event) (any, error) {
		pe := r.published[key]
		if pe == nil {
			return nil, nil
		}
		ev.MarkHandled(r.ID())
		if !ev.Flags.Multiple {
			ev.StopPropagation()
		}
		subs := slices.Clone(pe.subscribers)
		for _, sub := range subs {
			sub.deliver(ev)
		}
		r.tree.publish(Activity{
			Kind:    ActivityDelivered,
			Reactor: r.label,
			Key:     key,
			Message: fmt.Sprintf("%d subscribers", len(subs)),
		})
		return nil, nil
	}
}

// handleRegisterSubscriber matches the subscription against the local
// published events. On a miss it adds near-miss names and lets the request
// bubble; the root reports an escalated miss as an error event.
func (r *Reactor) handleRegisterSubscriber(ev *scope.Event) error {
	p, ok := ev.Detail.(*SubscriberPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}
	if p.Subscription == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, p.Key)
	}

	pe := r.published[p.Key]
	if pe == nil {
		p.Candidates = mergeCandidates(p.Candidates, r.suggest(p.Key))
		if r.IsRoot() && p.Escalate && !p.Optional {
			scope.RaiseError(ev.Target, &scope.ErrorDetail{
				Message:    fmt.Sprintf("no published event %q for subscriber", p.Key.String()),
				Err:        ErrEventNotPublished,
				Source:     p.Key,
				Candidates: p.Candidates,
			})
		}
		return nil
	}

	if !slices.Contains(pe.subscribers, p.Subscription) {
		pe.subscribers = append(pe.subscribers, p.Subscription)
	}
	p.Subscription.reactor = r
	r.tree.publish(Activity{Kind: ActivitySubscribed, Reactor: r.label, Key: p.Key})
	r.reply(ev, r)
	return nil
}

func (r *Reactor) handleRemoveSubscriber(ev *scope.Event) error {
	p, ok := ev.Detail.(*SubscriberPayload)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadPayload, ev.Detail)
	}

	if pe := r.published[p.Key]; pe != nil {
		if idx := slices.Index(pe.subscribers, p.Subscription); idx >= 0 {
			pe.subscribers = slices.Delete(pe.subscribers, idx, idx+1)
			p.Subscription.reactor = nil
			r.tree.publish(Activity{Kind: ActivityUnsubscribed, Reactor: r.label, Key: p.Key})
			r.reply(ev, true)
			return nil
		}
	}
	if r.IsRoot() {
		log.Warn(log.CatPubSub, "removing unknown subscriber", "event", p.Key.String(), "reactor", r.label)
		r.reply(ev, false)
	}
	return nil
}

func mergeCandidates(have, add []string) []string {
	for _, c := range add {
		if !slices.Contains(have, c) {
			have = append(have, c)
		}
	}
	return have
}
