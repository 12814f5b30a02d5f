package reactor

import "github.com/zjrosen/reactor/internal/scope"

// Protocol event keys answered by every reactor.
var (
	KeyReactorProbe           = scope.Named("reactorProbe")
	KeyRegisterAction         = scope.Named("registerAction")
	KeyRemoveAction           = scope.Named("removeAction")
	KeyRegisterActor          = scope.Named("registerActor")
	KeyRemoveActor            = scope.Named("removeActor")
	KeyRegisterPublishedEvent = scope.Named("registerPublishedEvent")
	KeyRemovePublishedEvent   = scope.Named("removePublishedEvent")
	KeyRegisterSubscriber     = scope.Named("registerSubscriber")
	KeyRemoveSubscriber       = scope.Named("removeSubscriber")
)

// ActorClass marks nodes owned by an actor.
const ActorClass = "actor"

// ActionPayload is the detail of registerAction and removeAction. Actors
// rewrite Key in place on the way up, so after dispatch it holds the
// effective key.
type ActionPayload struct {
	Key       scope.Key
	ActorName string
	Handler   scope.Handler
	Instance  any

	Bare          bool
	Observer      bool
	ReturnsResult bool
	IsAsync       bool
	Capture       bool

	// Registration identifies the installed handler on removal.
	Registration *ActionRegistration
}

// ActorPayload is the detail of registerActor and removeActor.
type ActorPayload struct {
	Name  string
	Actor *Actor
}

// PublishPayload is the detail of registerPublishedEvent and
// removePublishedEvent.
type PublishPayload struct {
	Key       scope.Key
	ActorName string
	Global    bool
	Bare      bool
	Publisher any
}

// SubscriberPayload is the detail of registerSubscriber and
// removeSubscriber. Reactors that do not publish Key append near-miss
// names to Candidates as the event bubbles.
type SubscriberPayload struct {
	Key          scope.Key
	Subscription *Subscription
	Optional     bool
	Escalate     bool
	Candidates   []string
}

// ProbePayload is the detail of reactorProbe. Each reactor the probe
// reaches passes itself to Accept: nil lets the probe bubble on, any other
// reactor answers it. A nil Accept takes the nearest reactor.
type ProbePayload struct {
	Accept func(*Reactor) *Reactor
}
