package reactor

import "github.com/zjrosen/reactor/internal/scope"

// Component is anything that mounts under a scope target: reactors,
// actors and the Action, Publish and Subscribe elements.
type Component interface {
	Mount(parent scope.Target) error
	Unmount() error
}

// Dispatcher sends events from a component's position in the tree.
type Dispatcher interface {
	Trigger(key scope.Key, detail any, opts ...scope.Option) (*scope.Event, error)
	Notify(name string, detail any, opts ...scope.Option) (*scope.Event, error)
	ActionResult(key scope.Key, detail any, opts ...scope.Option) (any, error)
}

// SubscriberOwner is told when the publisher of an event it subscribed to
// goes away.
type SubscriberOwner interface {
	PublisherUnmounted(key scope.Key)
}

// MountState is the lifecycle phase of a reactor or actor.
type MountState int

const (
	Unmounted MountState = iota
	DidMount
	Mounting
	Ready
	Unmounting
)

func (s MountState) String() string {
	switch s {
	case DidMount:
		return "didMount"
	case Mounting:
		return "mounting"
	case Ready:
		return "ready"
	case Unmounting:
		return "unmounting"
	default:
		return "unmounted"
	}
}

// mountAll mounts children in order. On failure the already mounted ones
// are unmounted again and the error is returned.
func mountAll(parent scope.Target, children []Component) ([]Component, error) {
	mounted := make([]Component, 0, len(children))
	for _, c := range children {
		if err := c.Mount(parent); err != nil {
			unmountAll(mounted)
			return nil, err
		}
		mounted = append(mounted, c)
	}
	return mounted, nil
}

// unmountAll unmounts in reverse order and returns the first error.
func unmountAll(mounted []Component) error {
	var first error
	for i := len(mounted) - 1; i >= 0; i-- {
		if err := mounted[i].Unmount(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
