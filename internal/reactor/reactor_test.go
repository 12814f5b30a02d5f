package reactor

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/scheduler"
	"github.com/zjrosen/reactor/internal/scope"
	"github.com/zjrosen/reactor/internal/tracing"
)

func TestReactor_MountPhases(t *testing.T) {
	env := newEnv(t)
	var calls []string
	r := NewReactor("app")
	r.Add(&recordingChild{name: "leaf", log: &calls})
	r.Early(&recordingChild{name: "universal", log: &calls})

	require.NoError(t, env.tree.Mount(r))
	require.Equal(t, DidMount, r.State())
	require.Empty(t, calls)
	require.ErrorIs(t, env.tree.Mount(r), ErrAlreadyMounted)

	env.sched.Tick()
	require.Equal(t, Ready, r.State())
	require.Equal(t, []string{"mount:universal", "mount:leaf"}, calls)

	// Children added once ready mount at once.
	r.Add(&recordingChild{name: "late", log: &calls})
	require.Equal(t, "mount:late", calls[len(calls)-1])

	require.NoError(t, r.Unmount())
	require.Equal(t, []string{"unmount:late", "unmount:leaf", "unmount:universal"}, calls[len(calls)-3:])
}

func TestReactor_FailingChildIsReportedAndSkipped(t *testing.T) {
	env := newEnv(t)
	boom := errors.New("boom")
	var calls []string
	r := NewReactor("app").Add(
		&recordingChild{name: "broken", log: &calls, err: boom},
		&recordingChild{name: "fine", log: &calls},
	)
	env.mountReady(r)

	require.Equal(t, []string{"mount:broken", "mount:fine"}, calls)
	found := env.errorsFor(boom)
	require.Len(t, found, 1)
	require.Equal(t, "app", found[0].Reactor)

	require.NoError(t, r.Unmount())
	require.Equal(t, "unmount:fine", calls[len(calls)-1])
	require.NotContains(t, calls, "unmount:broken")
}

func TestReactor_MountOutsideTree(t *testing.T) {
	r := NewReactor("app")
	require.ErrorIs(t, r.Mount(scope.NewRoot("stray")), ErrNoTree)
	require.Equal(t, Unmounted, r.State())
}

func TestReactor_DeferredUnlisten(t *testing.T) {
	env := newEnv(t)
	r := NewReactor("app")
	env.mountReady(r)
	installed := r.ListeningCount()
	require.Equal(t, 9, installed)

	require.NoError(t, r.Unmount())
	require.Equal(t, Unmounting, r.State())

	// Teardown traffic from children is still answered during the delay.
	_, err := r.ActionResult(KeyReactorProbe, &ProbePayload{})
	require.NoError(t, err)

	env.sched.Advance(99 * time.Millisecond)
	require.Equal(t, installed, r.ListeningCount())

	env.sched.Advance(time.Millisecond)
	require.Zero(t, r.ListeningCount())
	require.Equal(t, Unmounted, r.State())
	require.ErrorIs(t, r.Unmount(), ErrNotMounted)
}

func TestReactor_RemountWhileUnmounting(t *testing.T) {
	env := newEnv(t)
	r := NewReactor("app")
	env.mountReady(r)
	require.NoError(t, r.Unmount())

	env.mountReady(r)
	env.sched.Advance(time.Second)
	require.Equal(t, Ready, r.State())
	require.Equal(t, 9, r.ListeningCount())
}

func TestReactor_UnlistenDelayOverrides(t *testing.T) {
	env := newEnv(t)
	r := NewReactor("app", WithUnlistenDelay(0))
	env.mountReady(r)
	require.NoError(t, r.Unmount())
	require.Zero(t, r.ListeningCount())

	cfg := config.DefaultReactor()
	cfg.UnlistenDelay = 5 * time.Millisecond
	env.tree.Reload(cfg, nil)
	other := NewReactor("other")
	env.mountReady(other)
	require.Equal(t, 5*time.Millisecond, other.UnlistenDelay())
	require.Zero(t, r.UnlistenDelay())
}

func TestReactor_RootDetection(t *testing.T) {
	env := newEnv(t)
	inner := NewReactor("inner")
	forced := NewReactor("forced", AsRoot())
	outer := NewReactor("outer").Add(inner, forced)
	env.mountReady(outer)

	require.Equal(t, Ready, inner.State())
	require.True(t, outer.IsRoot())
	require.False(t, inner.IsRoot())
	require.True(t, forced.IsRoot())
}

func TestReactor_Probe(t *testing.T) {
	env := newEnv(t)
	inner := NewReactor("inner")
	outer := NewReactor("outer").Add(inner)
	env.mountReady(outer)
	leaf := inner.ScopeNode().NewChild("leaf")

	res, err := scope.ActionResult(leaf, KeyReactorProbe, &ProbePayload{})
	require.NoError(t, err)
	require.Same(t, inner, res)

	res, err = scope.ActionResult(leaf, KeyReactorProbe, &ProbePayload{
		Accept: func(r *Reactor) *Reactor {
			if r.IsRoot() {
				return r
			}
			return nil
		},
	})
	require.NoError(t, err)
	require.Same(t, outer, res)

	var asked []string
	res, err = scope.ActionResult(leaf, KeyReactorProbe, &ProbePayload{
		Accept: func(r *Reactor) *Reactor {
			asked = append(asked, r.Label())
			return outer
		},
	})
	require.NoError(t, err)
	require.Same(t, outer, res)
	require.Equal(t, []string{"inner"}, asked)

	_, err = scope.ActionResult(env.tree, KeyReactorProbe, &ProbePayload{}, scope.SuppressUnhandled())
	require.ErrorIs(t, err, scope.ErrNoResult)
}

func TestReactor_BadPayloadFailsRequest(t *testing.T) {
	env := newEnv(t)
	r := NewReactor("app")
	env.mountReady(r)

	_, err := r.ActionResult(KeyRegisterAction, "not a payload")
	require.ErrorIs(t, err, ErrBadPayload)
}

func TestReactor_ActivityStream(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := env.tree.Activity().Subscribe(ctx)

	r := NewReactor("app").Add(MustAction(Handle("refresh", noop)))
	env.mountReady(r)
	require.NoError(t, r.Unmount())

	kinds := drainKinds(ch)
	require.Equal(t, []ActivityKind{
		ActivityActionAdded,
		ActivityReactorReady,
		ActivityActionRemoved,
		ActivityReactorUnmounted,
	}, kinds)
}

func TestReactor_ActivityString(t *testing.T) {
	a := Activity{Kind: ActivityActionAdded, Reactor: "app", Key: scope.Scoped("members", "create"), Message: "bare"}
	require.Equal(t, "action.added [app] members:create: bare", a.String())
	require.Equal(t, "error", Activity{Kind: ActivityError}.String())
}

func TestTree_DispatchTraceFlag(t *testing.T) {
	env := newEnv(t, WithFlags(flags.New(map[string]bool{flags.FlagDispatchTrace: true})))
	var debug bool
	r := NewReactor("app").Add(MustAction(Handle("refresh", func(ev *scope.Event) (any, error) {
		debug = ev.Flags.Debug
		return nil, nil
	})))
	env.mountReady(r)

	_, err := r.Trigger(scope.Named("refresh"), nil)
	require.NoError(t, err)
	require.True(t, debug)
}

func TestTree_DispatchOptionsLeavesCallerSliceAlone(t *testing.T) {
	env := newEnv(t, WithFlags(flags.New(map[string]bool{flags.FlagDispatchTrace: true})))
	opts := make([]scope.Option, 1, 4)
	opts[0] = scope.Single()

	out := env.tree.dispatchOptions(opts)
	require.Len(t, out, 2)
	require.Len(t, opts, 1)
	require.Nil(t, opts[:2][1])
}

func TestReactor_RemountBeforeQueuedUnlistenRuns(t *testing.T) {
	loop := scheduler.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))
	defer loop.Stop()

	tree := NewTree(loop)
	t.Cleanup(tree.Close)
	r := NewReactor("app", WithUnlistenDelay(10*time.Millisecond))

	ready := func() bool {
		var state MountState
		if err := loop.DoAndWait(ctx, func() { state = r.State() }); err != nil {
			return false
		}
		return state == Ready
	}
	var err error
	require.NoError(t, loop.DoAndWait(ctx, func() { err = tree.Mount(r) }))
	require.NoError(t, err)
	require.Eventually(t, ready, time.Second, 5*time.Millisecond)

	require.NoError(t, loop.DoAndWait(ctx, func() { err = r.Unmount() }))
	require.NoError(t, err)
	require.NoError(t, loop.DoAndWait(ctx, func() {
		// The unlisten timer fires while this task holds the loop.
		time.Sleep(40 * time.Millisecond)
		err = tree.Mount(r)
	}))
	require.NoError(t, err)
	require.Eventually(t, ready, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	var (
		state     MountState
		listening int
	)
	require.NoError(t, loop.DoAndWait(ctx, func() {
		state = r.State()
		listening = r.ListeningCount()
	}))
	require.Equal(t, Ready, state)
	require.Equal(t, 9, listening)
}

func TestTree_TracerOpensSpanPerDispatch(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	env := newEnv(t, WithTracer(tp.Tracer("test")))
	boom := errors.New("boom")
	r := NewReactor("app").Add(MustAction(Handle("save", func(*scope.Event) (any, error) { return nil, boom })))
	env.mountReady(r)

	_, err := r.Trigger(scope.Named("save"), nil)
	require.NoError(t, err)

	var save sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == tracing.SpanPrefixDispatch+"save" {
			save = s
		}
	}
	require.NotNil(t, save)
	require.Equal(t, codes.Error, save.Status().Code)
}

func TestReactor_ActionKeysProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 12, rapid.ID[string]).Draw(rt, "names")

		sched := scheduler.NewManual(time.Time{})
		tree := NewTree(sched)
		defer tree.Close()

		r := NewReactor("app")
		actions := make([]*Action, len(names))
		for i, name := range names {
			actions[i] = MustAction(Handle(name, noop))
			r.Add(actions[i])
		}
		require.NoError(rt, tree.Mount(r))
		sched.Tick()
		require.Equal(rt, slices.Sorted(slices.Values(names)), keyStrings(r.ActionKeys()))

		removed := rapid.SliceOfNDistinct(rapid.IntRange(0, len(names)-1), 0, len(names), rapid.ID[int]).Draw(rt, "removed")
		gone := make(map[string]bool)
		for _, i := range removed {
			require.NoError(rt, actions[i].Unmount())
			gone[names[i]] = true
		}

		var want []string
		for _, name := range names {
			if !gone[name] {
				want = append(want, name)
			}
		}
		slices.Sort(want)
		got := keyStrings(r.ActionKeys())
		if len(want) == 0 {
			require.Empty(rt, got)
			return
		}
		require.Equal(rt, want, got)
	})
}
