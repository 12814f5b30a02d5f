package scope

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recorder installs handlers that append their name to a shared log.
type recorder struct {
	calls []string
}

func (r *recorder) handler(name string, ret any) Handler {
	return func(ev *Event) (any, error) {
		r.calls = append(r.calls, name+"@"+ev.Phase.String())
		return ret, nil
	}
}

func buildChain() (root, mid, leaf *Node) {
	root = NewRoot("root")
	mid = root.NewChild("mid", ReactorClass)
	leaf = mid.NewChild("leaf")
	return root, mid, leaf
}

func TestKey_StringAndParse(t *testing.T) {
	require.Equal(t, "members:create", Scoped("members", "create").String())
	require.Equal(t, "create", Named("create").String())
	require.Equal(t, Scoped("members", "create"), ParseKey("members:create"))
	require.Equal(t, Named("create"), ParseKey("create"))
	require.True(t, Key{}.IsZero())
	require.Equal(t, Scoped("books", "dataUpdated"), Named("dataUpdated").WithScope("books"))
}

func TestDispatch_CaptureTargetBubbleOrder(t *testing.T) {
	root, mid, leaf := buildChain()
	rec := &recorder{}
	key := Named("ping")

	root.AddListener(key, rec.handler("root-capture", nil), true)
	root.AddListener(key, rec.handler("root-bubble", nil), false)
	mid.AddListener(key, rec.handler("mid-capture", nil), true)
	mid.AddListener(key, rec.handler("mid-bubble", nil), false)
	leaf.AddListener(key, rec.handler("leaf", nil), false)

	leaf.Dispatch(NewEvent(key, nil))

	require.Equal(t, []string{
		"root-capture@capture",
		"mid-capture@capture",
		"leaf@target",
		"mid-bubble@bubble",
		"root-bubble@bubble",
	}, rec.calls)
}

func TestDispatch_StopPropagation(t *testing.T) {
	root, mid, leaf := buildChain()
	rec := &recorder{}
	key := Named("ping")

	mid.AddListener(key, func(ev *Event) (any, error) {
		rec.calls = append(rec.calls, "mid")
		ev.StopPropagation()
		return nil, nil
	}, false)
	mid.AddListener(key, rec.handler("mid-second", nil), false)
	root.AddListener(key, rec.handler("root", nil), false)

	ev := leaf.Dispatch(NewEvent(key, nil))

	require.True(t, ev.Stopped())
	// Handlers on the same node still run; the walk ends after it.
	require.Equal(t, []string{"mid", "mid-second@bubble"}, rec.calls)
}

func TestDispatch_RemoveDuringWalk(t *testing.T) {
	root := NewRoot("root")
	key := Named("once")
	count := 0
	var second *Binding
	root.AddListener(key, func(ev *Event) (any, error) {
		count++
		root.RemoveListener(second)
		return nil, nil
	}, false)
	second = root.AddListener(key, func(ev *Event) (any, error) {
		count += 10
		return nil, nil
	}, false)

	root.Dispatch(NewEvent(key, nil))
	require.Equal(t, 1, count)
	require.False(t, second.Active())
	require.Equal(t, 1, root.ListenerCount(key))
}

func TestDispatch_HandlerPanicDoesNotStopWalk(t *testing.T) {
	root, _, leaf := buildChain()
	key := Named("explode")
	reached := false
	leaf.AddListener(key, func(ev *Event) (any, error) { panic("boom") }, false)
	leaf.AddListener(key, func(ev *Event) (any, error) { return nil, errors.New("nope") }, false)
	root.AddListener(key, func(ev *Event) (any, error) {
		reached = true
		return nil, nil
	}, false)

	require.NotPanics(t, func() { leaf.Dispatch(NewEvent(key, nil)) })
	require.True(t, reached)
}

func TestNode_TreeOperations(t *testing.T) {
	root, mid, leaf := buildChain()

	require.Equal(t, mid, leaf.Parent())
	require.Equal(t, []*Node{root, mid, leaf}, leaf.Path())
	require.Equal(t, mid, leaf.Closest(ReactorClass))
	require.Nil(t, root.Closest(ReactorClass))

	root.SetValue("theme", "dark")
	v, ok := leaf.Lookup("theme")
	require.True(t, ok)
	require.Equal(t, "dark", v)

	mid.Detach()
	require.Nil(t, mid.Parent())
	require.Empty(t, root.Children())
	_, ok = leaf.Lookup("theme")
	require.False(t, ok)
	require.Equal(t, []*Node{mid, leaf}, leaf.Path())
}

func TestNode_RemoveListenerForeignBinding(t *testing.T) {
	a := NewRoot("a")
	b := NewRoot("b")
	binding := a.AddListener(Named("x"), func(*Event) (any, error) { return nil, nil }, false)

	require.False(t, b.RemoveListener(binding))
	require.True(t, a.RemoveListener(binding))
	require.False(t, a.RemoveListener(binding))
	require.Empty(t, a.Keys())
}

func TestTrigger_UnhandledRaisesErrorEvent(t *testing.T) {
	root, _, leaf := buildChain()
	var got *ErrorDetail
	root.AddListener(KeyError, func(ev *Event) (any, error) {
		got = ev.Detail.(*ErrorDetail)
		ev.MarkHandled("test")
		return nil, nil
	}, false)

	ev, err := Trigger(leaf, Named("missing"), nil)
	require.NoError(t, err)
	require.False(t, ev.Handled())

	require.NotNil(t, got)
	require.ErrorIs(t, got, ErrUnhandled)
	require.Equal(t, Named("missing"), got.Source)
	require.Equal(t, "mid", got.Reactor)
	require.Contains(t, got.Error(), `"missing"`)
	require.Contains(t, got.Error(), "(in mid)")
}

func TestTrigger_UnhandledPolicies(t *testing.T) {
	root, _, leaf := buildChain()
	errorEvents := 0
	root.AddListener(KeyError, func(ev *Event) (any, error) {
		errorEvents++
		ev.MarkHandled("test")
		return nil, nil
	}, false)

	_, err := Trigger(leaf, Named("missing"), nil, SuppressUnhandled())
	require.NoError(t, err)
	_, err = Trigger(leaf, Named("missing"), nil, Optional())
	require.NoError(t, err)
	require.Equal(t, 0, errorEvents)

	var callback *Event
	_, err = Trigger(leaf, Named("missing"), nil, WithUnhandled(func(ev *Event) { callback = ev }))
	require.NoError(t, err)
	require.NotNil(t, callback)
	require.Equal(t, 0, errorEvents)
}

func TestTrigger_NoTarget(t *testing.T) {
	_, err := Trigger(nil, Named("x"), nil)
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestActionResult(t *testing.T) {
	root, _, leaf := buildChain()
	key := Named("sum")
	root.AddListener(key, func(ev *Event) (any, error) {
		require.True(t, ev.ResultPending())
		require.True(t, ev.Flags.Single)
		nums := ev.Detail.([]int)
		ev.SetResult(nums[0] + nums[1])
		ev.MarkHandled("sum")
		ev.StopPropagation()
		return nil, nil
	}, false)

	v, err := ActionResult(leaf, key, []int{2, 3})
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestActionResult_UnregisteredFails(t *testing.T) {
	_, _, leaf := buildChain()
	_, err := ActionResult(leaf, Named("nobody"), nil, SuppressUnhandled())
	require.ErrorIs(t, err, ErrNoResult)
}

func TestActionResult_FailurePropagates(t *testing.T) {
	root := NewRoot("root")
	boom := errors.New("boom")
	root.AddListener(Named("fail"), func(ev *Event) (any, error) {
		ev.Fail(boom)
		ev.MarkHandled("fail")
		return nil, nil
	}, false)

	_, err := ActionResult(root, Named("fail"), nil)
	require.ErrorIs(t, err, boom)
}

func TestFriendlyStack_HidesMachinery(t *testing.T) {
	stack := FriendlyStack(0)
	for _, line := range stack {
		require.False(t, strings.HasPrefix(line, "runtime."), line)
		require.False(t, strings.HasPrefix(line, "github.com/zjrosen/reactor/internal/scope."), line)
	}
}

func TestDispatch_TracingSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(t.Context()) }()

	root, _, leaf := buildChain()
	root.SetValue(TracerKey, provider.Tracer("test"))
	root.AddListener(Named("traced"), func(ev *Event) (any, error) {
		ev.MarkHandled("root")
		return nil, nil
	}, false)

	_, err := Trigger(leaf, Named("traced"), nil)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "dispatch.traced", spans[0].Name)
}
