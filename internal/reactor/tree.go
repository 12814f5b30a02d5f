package reactor

import (
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/reactor/internal/cachemanager"
	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
)

type treeKey struct{}

// Tree is the runtime every component is mounted under. It owns the root
// scope node and the services components look up from it: the scheduler,
// tuning, feature flags, the suggestion cache and the activity stream.
//
// Components are not safe for concurrent use. With a scheduler.Loop, mount
// and trigger from inside Loop.Do so every callback shares one goroutine.
type Tree struct {
	root        *scope.Node
	sched       scheduler.Scheduler
	activity    *pubsub.Broker[Activity]
	suggestions cachemanager.CacheManager[[]string]

	mu    sync.RWMutex
	cfg   config.ReactorConfig
	flags *flags.Registry
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithConfig sets the tuning. The default is config.DefaultReactor().
func WithConfig(cfg config.ReactorConfig) TreeOption {
	return func(t *Tree) { t.cfg = cfg }
}

// WithFlags sets the feature flags.
func WithFlags(f *flags.Registry) TreeOption {
	return func(t *Tree) { t.flags = f }
}

// WithTracer opens one span per dispatch inside the tree.
func WithTracer(tracer trace.Tracer) TreeOption {
	return func(t *Tree) {
		if tracer != nil {
			t.root.SetValue(scope.TracerKey, tracer)
		}
	}
}

// WithSuggestionCache replaces the near-miss suggestion cache.
func WithSuggestionCache(c cachemanager.CacheManager[[]string]) TreeOption {
	return func(t *Tree) { t.suggestions = c }
}

// NewTree creates a tree whose deferred work runs on sched.
func NewTree(sched scheduler.Scheduler, opts ...TreeOption) *Tree {
	t := &Tree{
		root:     scope.NewRoot("tree"),
		sched:    sched,
		activity: pubsub.NewBroker[Activity](),
		cfg:      config.DefaultReactor(),
	}
	t.activity.WithClock(sched.Now)
	for _, opt := range opts {
		opt(t)
	}
	if t.suggestions == nil {
		t.suggestions = cachemanager.NewInMemoryCacheManager[[]string]("suggestions", t.cfg.Suggestions.CacheTTL, cachemanager.DefaultCleanupInterval)
	}
	t.root.SetValue(treeKey{}, t)
	t.root.SetOwner(t)
	t.root.AddListener(scope.KeyError, t.observeError, false)
	return t
}

// ScopeNode implements scope.Target.
func (t *Tree) ScopeNode() *scope.Node { return t.root }

// Scheduler returns the scheduler deferred work runs on.
func (t *Tree) Scheduler() scheduler.Scheduler { return t.sched }

// Activity returns the stream of registrations, removals and errors.
func (t *Tree) Activity() *pubsub.Broker[Activity] { return t.activity }

// Config returns the current tuning.
func (t *Tree) Config() config.ReactorConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Flags returns the current feature flags.
func (t *Tree) Flags() *flags.Registry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flags
}

// Reload swaps tuning and flags. Components read them when they next need
// them; pending timers keep their delays.
func (t *Tree) Reload(cfg config.ReactorConfig, f *flags.Registry) {
	t.mu.Lock()
	t.cfg = cfg
	t.flags = f
	t.mu.Unlock()
	log.Info(log.CatConfig, "reactor tuning reloaded",
		"unlisten_delay", cfg.UnlistenDelay,
		"subscribe_defer", cfg.SubscribeDefer,
		"flags", f.All())
}

// Mount mounts c directly under the tree root.
func (t *Tree) Mount(c Component) error {
	return c.Mount(t)
}

// Close ends the activity stream.
func (t *Tree) Close() {
	t.activity.Close()
}

// dispatchOptions adds the options every trigger inside the tree carries.
func (t *Tree) dispatchOptions(opts []scope.Option) []scope.Option {
	if t.Flags().Enabled(flags.FlagDispatchTrace) {
		return append(slices.Clip(opts), scope.Debug())
	}
	return opts
}

// observeError mirrors error events into the activity stream without
// handling them.
func (t *Tree) observeError(ev *scope.Event) (any, error) {
	a := Activity{Kind: ActivityError, Message: "error event"}
	if d, ok := ev.Detail.(*scope.ErrorDetail); ok {
		a.Reactor = d.Reactor
		a.Key = d.Source
		a.Message = d.Error()
	}
	t.publish(a)
	return nil, nil
}

func (t *Tree) publish(a Activity) {
	t.activity.Publish(a.Kind.eventType(), a)
}

// treeOf resolves the node and tree of a mount target.
func treeOf(target scope.Target) (*Tree, *scope.Node, error) {
	if target == nil {
		return nil, nil, ErrNoTree
	}
	node := target.ScopeNode()
	if node == nil {
		return nil, nil, ErrNoTree
	}
	v, ok := node.Lookup(treeKey{})
	if !ok {
		return nil, nil, ErrNoTree
	}
	return v.(*Tree), node, nil
}
