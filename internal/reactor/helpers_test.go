package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
)

// testEnv is a tree on a manual clock with every error event collected at
// the root.
type testEnv struct {
	t     *testing.T
	sched *scheduler.Manual
	tree  *Tree
	errs  []*scope.ErrorDetail
}

func newEnv(t *testing.T, opts ...TreeOption) *testEnv {
	t.Helper()
	sched := scheduler.NewManual(time.Time{})
	env := &testEnv{t: t, sched: sched, tree: NewTree(sched, opts...)}
	env.tree.ScopeNode().AddListener(scope.KeyError, func(ev *scope.Event) (any, error) {
		if d, ok := ev.Detail.(*scope.ErrorDetail); ok {
			env.errs = append(env.errs, d)
		}
		ev.MarkHandled("test")
		return nil, nil
	}, false)
	t.Cleanup(env.tree.Close)
	return env
}

// mountReady mounts r at the tree root and runs its mount phases.
func (e *testEnv) mountReady(r *Reactor) {
	e.t.Helper()
	require.NoError(e.t, e.tree.Mount(r))
	e.sched.Tick()
	require.Equal(e.t, Ready, r.State())
}

// errorsFor returns the collected error events wrapping target.
func (e *testEnv) errorsFor(target error) []*scope.ErrorDetail {
	var out []*scope.ErrorDetail
	for _, d := range e.errs {
		if d.Err != nil && errors.Is(d.Err, target) {
			out = append(out, d)
		}
	}
	return out
}

// recordingChild records its lifecycle calls in a shared log.
type recordingChild struct {
	name string
	log  *[]string
	err  error
}

func (c *recordingChild) Mount(scope.Target) error {
	*c.log = append(*c.log, "mount:"+c.name)
	return c.err
}

func (c *recordingChild) Unmount() error {
	*c.log = append(*c.log, "unmount:"+c.name)
	return nil
}

func noop(*scope.Event) (any, error) { return nil, nil }

func keyStrings(keys []scope.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func drainKinds(ch <-chan pubsub.Event[Activity]) []ActivityKind {
	var kinds []ActivityKind
	for {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Payload.Kind)
		default:
			return kinds
		}
	}
}
