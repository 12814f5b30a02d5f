package reactor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scope"
)

// SubscriberFunc receives the detail of a published event.
type SubscriberFunc func(detail any) error

// Subscription is a subscriber entry in a reactor's published event. Its
// pointer is the identity used on removal.
type Subscription struct {
	id    string
	key   scope.Key
	fn    SubscriberFunc
	owner SubscriberOwner
	at    scope.Target

	reactor   *Reactor
	delivered int
}

// NewSubscription creates a subscription for key. Failures of fn are
// raised as error events at at; owner is told when the publisher goes away.
func NewSubscription(key scope.Key, fn SubscriberFunc, owner SubscriberOwner, at scope.Target) *Subscription {
	return &Subscription{
		id:    uuid.NewString(),
		key:   key,
		fn:    fn,
		owner: owner,
		at:    at,
	}
}

// Key returns the subscribed event key.
func (s *Subscription) Key() scope.Key { return s.key }

// Reactor returns the reactor the subscription is registered with, or nil.
func (s *Subscription) Reactor() *Reactor { return s.reactor }

// Delivered returns how many events reached the subscriber.
func (s *Subscription) Delivered() int { return s.delivered }

func (s *Subscription) deliver(ev *scope.Event) {
	s.delivered++
	err := s.call(ev.Detail)
	if err == nil {
		return
	}
	log.ErrorErr(log.CatPubSub, "subscriber failed", err, "event", s.key.String(), "subscription", s.id)
	scope.MarkSpanError(ev, err)
	at := s.at
	if at == nil || at.ScopeNode() == nil {
		at = ev.Target
	}
	scope.RaiseError(at, &scope.ErrorDetail{
		Message: fmt.Sprintf("subscriber of %q failed: %v", s.key.String(), err),
		Err:     err,
		Source:  s.key,
	})
}

func (s *Subscription) call(detail any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.fn(detail)
}

func (s *Subscription) publisherGone(key scope.Key) {
	s.reactor = nil
	if s.owner == nil {
		log.Warn(log.CatPubSub, "orphaned subscriber: publisher unmounted", "event", key.String(), "subscription", s.id)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatPubSub, "subscriber owner panicked", "event", key.String(), "panic", r)
		}
	}()
	s.owner.PublisherUnmounted(key)
}
