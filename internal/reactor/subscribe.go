package reactor

import (
	"fmt"
	"time"

	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
)

// SubscribeState is the connection phase of a Subscribe element.
type SubscribeState int

const (
	Unregistered SubscribeState = iota
	Connecting
	Connected
	SubscribeUnmounting
)

func (s SubscribeState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case SubscribeUnmounting:
		return "unmounting"
	default:
		return "unregistered"
	}
}

// SubscribeSpec declares one subscription. Events holds exactly one entry:
// the event key ("actor:name" or "name") and its callback.
type SubscribeSpec struct {
	Events   map[string]SubscriberFunc
	Optional bool
}

// On returns a spec subscribing fn to event.
func On(event string, fn SubscriberFunc) SubscribeSpec {
	return SubscribeSpec{Events: map[string]SubscriberFunc{event: fn}}
}

// Subscribe connects a callback to a published event. Publishers may mount
// after the subscriber, so registration is retried with backoff; the last
// attempt escalates to an error event listing near-miss names.
type Subscribe struct {
	spec SubscribeSpec
	key  scope.Key
	sub  *Subscription

	tree   *Tree
	parent scope.Target
	node   *scope.Node

	state      SubscribeState
	unmounting bool
	epoch      uint64
	timer      scheduler.Timer
	probeSeq   *scheduler.Sequence
	subSeq     *scheduler.Sequence
	candidates []string
}

// NewSubscribe validates spec and returns an unmounted subscriber.
func NewSubscribe(spec SubscribeSpec) (*Subscribe, error) {
	if len(spec.Events) != 1 {
		return nil, fmt.Errorf("%w: subscribe has %d events", ErrAmbiguousProps, len(spec.Events))
	}
	s := &Subscribe{spec: spec}
	for event, fn := range spec.Events {
		if event == "" || fn == nil {
			return nil, fmt.Errorf("%w: subscribe event or callback missing", ErrAmbiguousProps)
		}
		s.key = scope.ParseKey(event)
		s.sub = NewSubscription(s.key, fn, s, nil)
	}
	return s, nil
}

// MustSubscribe is NewSubscribe for static declarations.
func MustSubscribe(spec SubscribeSpec) *Subscribe {
	s, err := NewSubscribe(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Key returns the subscribed key.
func (s *Subscribe) Key() scope.Key { return s.key }

// State returns the connection phase.
func (s *Subscribe) State() SubscribeState { return s.state }

// Subscription returns the registry entry.
func (s *Subscribe) Subscription() *Subscription { return s.sub }

// Candidates returns the near-miss names gathered by the last failed
// registration.
func (s *Subscribe) Candidates() []string { return s.candidates }

// ScopeNode implements scope.Target.
func (s *Subscribe) ScopeNode() *scope.Node { return s.node }

// Mount starts connecting. Errors only come from a parent outside a tree;
// a missing publisher is retried.
func (s *Subscribe) Mount(parent scope.Target) error {
	if s.node != nil {
		return ErrAlreadyMounted
	}
	tree, pnode, err := treeOf(parent)
	if err != nil {
		return err
	}
	s.tree = tree
	s.parent = parent
	s.node = pnode.NewChild("Subscribe(" + s.key.String() + ")")
	s.node.SetOwner(s)
	s.sub.at = s.node
	s.unmounting = false
	s.epoch++

	cfg := tree.Config()
	s.probeSeq = backoffOf(cfg.ProbeRetry).Start()
	s.subSeq = backoffOf(cfg.SubscribeRetry).Start()
	s.candidates = nil
	s.state = Connecting
	s.connect()
	return nil
}

// connect finds the nearest reactor, then defers the registration so
// publishers mounted in the same pass are in place.
func (s *Subscribe) connect() {
	if s.unmounting {
		return
	}
	res, err := scope.ActionResult(s.node, KeyReactorProbe, &ProbePayload{}, scope.SuppressUnhandled())
	if _, ok := res.(*Reactor); err != nil || !ok {
		delay, more := s.probeSeq.Next()
		if !more {
			s.state = Unregistered
			log.Warn(log.CatPubSub, "no reactor found for subscriber", "event", s.key.String(),
				"attempts", s.probeSeq.Attempts())
			if !s.spec.Optional {
				scope.RaiseError(s.node, &scope.ErrorDetail{
					Message: fmt.Sprintf("subscriber for %q found no reactor", s.key.String()),
					Err:     ErrNoReactor,
					Source:  s.key,
				})
			}
			return
		}
		s.after(delay, s.connect)
		return
	}
	s.probeSeq.Reset()
	s.after(s.tree.Config().SubscribeDefer, s.subscribe)
}

func (s *Subscribe) subscribe() {
	if s.unmounting {
		return
	}
	final := s.subSeq.Exhausted()
	payload := &SubscriberPayload{
		Key:          s.key,
		Subscription: s.sub,
		Optional:     s.spec.Optional,
		Escalate:     final,
	}
	_, err := scope.ActionResult(s.node, KeyRegisterSubscriber, payload, scope.SuppressUnhandled())
	if err == nil {
		s.state = Connected
		s.candidates = nil
		s.subSeq.Reset()
		log.Debug(log.CatPubSub, "subscriber connected", "event", s.key.String(),
			"reactor", s.sub.Reactor().Label())
		return
	}

	s.candidates = payload.Candidates
	if final {
		s.state = Unregistered
		log.Warn(log.CatPubSub, "subscriber gave up", "event", s.key.String(),
			"attempts", s.subSeq.Attempts(), "candidates", s.candidates)
		return
	}
	delay, more := s.subSeq.Next()
	if !more {
		delay = 0
	}
	log.Debug(log.CatPubSub, "subscriber retrying", "event", s.key.String(), "delay", delay)
	s.after(delay, s.subscribe)
}

// PublisherUnmounted implements SubscriberOwner: the subscriber starts
// over, waiting for a new publisher.
func (s *Subscribe) PublisherUnmounted(key scope.Key) {
	if s.unmounting || s.node == nil {
		return
	}
	log.Debug(log.CatPubSub, "publisher went away", "event", key.String())
	s.state = Connecting
	s.subSeq.Reset()
	s.after(s.tree.Config().SubscribeDefer, s.subscribe)
}

// Unmount stops retries and removes the subscription.
func (s *Subscribe) Unmount() error {
	if s.node == nil {
		return ErrNotMounted
	}
	s.unmounting = true
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	wasConnected := s.state == Connected
	s.state = SubscribeUnmounting

	if wasConnected {
		payload := &SubscriberPayload{Key: s.key, Subscription: s.sub}
		if _, err := scope.ActionResult(s.node, KeyRemoveSubscriber, payload, scope.SuppressUnhandled()); err != nil {
			log.Warn(log.CatPubSub, "removing subscriber failed", "event", s.key.String(), "error", err)
		}
	}
	s.node.Detach()
	s.node = nil
	s.state = Unregistered
	return nil
}

// after schedules fn, dropping it when the subscriber remounted or
// unmounted in the meantime.
func (s *Subscribe) after(d time.Duration, fn func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	epoch := s.epoch
	s.timer = s.tree.sched.AfterFunc(d, func() {
		if epoch != s.epoch {
			return
		}
		s.timer = nil
		fn()
	})
}

func backoffOf(rc config.RetryConfig) scheduler.Backoff {
	return scheduler.Backoff{
		Base:        rc.Base,
		Factor:      rc.Factor,
		Max:         rc.Max,
		MaxAttempts: rc.MaxAttempts,
	}
}
