package reactor

import (
	"fmt"

	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/scope"
)

// ActivityKind classifies an Activity.
type ActivityKind string

const (
	ActivityReactorReady     ActivityKind = "reactor.ready"
	ActivityReactorUnmounted ActivityKind = "reactor.unmounted"
	ActivityActionAdded      ActivityKind = "action.added"
	ActivityActionRemoved    ActivityKind = "action.removed"
	ActivityActorAdded       ActivityKind = "actor.added"
	ActivityActorRemoved     ActivityKind = "actor.removed"
	ActivityEventPublished   ActivityKind = "event.published"
	ActivityEventWithdrawn   ActivityKind = "event.withdrawn"
	ActivitySubscribed       ActivityKind = "subscriber.added"
	ActivityUnsubscribed     ActivityKind = "subscriber.removed"
	ActivityDelivered        ActivityKind = "event.delivered"
	ActivityError            ActivityKind = "error"
)

func (k ActivityKind) eventType() pubsub.EventType {
	switch k {
	case ActivityActionRemoved, ActivityActorRemoved, ActivityEventWithdrawn,
		ActivityUnsubscribed, ActivityReactorUnmounted:
		return pubsub.DeletedEvent
	case ActivityError:
		return pubsub.FailedEvent
	case ActivityDelivered:
		return pubsub.UpdatedEvent
	default:
		return pubsub.CreatedEvent
	}
}

// Activity is one entry of a tree's activity stream.
type Activity struct {
	Kind    ActivityKind
	Reactor string
	Key     scope.Key
	Message string
}

func (a Activity) String() string {
	s := string(a.Kind)
	if a.Reactor != "" {
		s += " [" + a.Reactor + "]"
	}
	if !a.Key.IsZero() {
		s += " " + a.Key.String()
	}
	if a.Message != "" {
		s += fmt.Sprintf(": %s", a.Message)
	}
	return s
}
