package inspector

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/reactor/internal/demo"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/reactor"
	"github.com/zjrosen/reactor/internal/scope"
)

type fakeDriver struct {
	flags    *flags.Registry
	titles   []string
	members  []string
	remounts int
	setErr   error
	addErr   error
}

func (d *fakeDriver) AddBook(title string) (demo.Book, error) {
	if d.addErr != nil {
		return demo.Book{}, d.addErr
	}
	d.titles = append(d.titles, title)
	return demo.Book{ID: len(d.titles), Title: title}, nil
}

func (d *fakeDriver) CreateMember(name string) (string, error) {
	d.members = append(d.members, name)
	return "m-001", nil
}

func (d *fakeDriver) Stats() (demo.Stats, error) {
	return demo.Stats{Books: len(d.titles), Members: len(d.members), Updates: 3}, nil
}

func (d *fakeDriver) Remount() error {
	d.remounts++
	return nil
}

func (d *fakeDriver) Flags() *flags.Registry { return d.flags }

func (d *fakeDriver) SetFlag(name string, on bool) error {
	if d.setErr != nil {
		return d.setErr
	}
	d.flags = d.flags.With(name, on)
	return nil
}

func newModel(t *testing.T, d *fakeDriver) Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	broker := pubsub.NewBroker[reactor.Activity]()
	t.Cleanup(broker.Close)
	m := New(ctx, Config{Activity: broker, Driver: d})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends k and feeds the resulting driver message back into the model.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	updated, cmd := m.Update(runes(k))
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if _, ok := msg.(resultMsg); !ok {
		return m
	}
	updated, _ = m.Update(msg)
	return updated.(Model)
}

func activity(kind reactor.ActivityKind, key string) pubsub.Event[reactor.Activity] {
	return pubsub.Event[reactor.Activity]{
		Type:    pubsub.CreatedEvent,
		Payload: reactor.Activity{Kind: kind, Reactor: "library", Key: scope.ParseKey(key)},
	}
}

func TestNew_NoLogsHidesLogPane(t *testing.T) {
	m := newModel(t, &fakeDriver{})
	require.False(t, m.showLogs)
	require.True(t, m.following)
	require.Contains(t, m.View(), "No activity yet")
}

func TestView_BeforeSize(t *testing.T) {
	m := New(context.Background(), Config{Driver: &fakeDriver{}})
	require.Equal(t, "loading...", m.View())
}

func TestUpdate_ActivityAppendsAndRearms(t *testing.T) {
	m := newModel(t, &fakeDriver{})

	updated, cmd := m.Update(activity(reactor.ActivityActionAdded, "books:add"))
	m = updated.(Model)
	require.NotNil(t, cmd)
	updated, _ = m.Update(activity(reactor.ActivityError, "books:dataUpdate"))
	m = updated.(Model)

	require.Len(t, m.entries, 2)
	require.Equal(t, 1, m.counts[reactor.ActivityError])
	view := m.View()
	require.Contains(t, view, "action.added [library] books:add")
	require.Contains(t, view, "2 entries, 1 errors")
}

func TestUpdate_EntriesCapped(t *testing.T) {
	m := newModel(t, &fakeDriver{})
	for range maxEntries + 10 {
		updated, _ := m.Update(activity(reactor.ActivityDelivered, "books:dataUpdated"))
		m = updated.(Model)
	}
	require.Len(t, m.entries, maxEntries)
	require.Equal(t, maxEntries+10, m.counts[reactor.ActivityDelivered])
}

func TestKeys_AddBookCallsDriver(t *testing.T) {
	d := &fakeDriver{}
	m := newModel(t, d)

	m = press(t, m, "b")
	m = press(t, m, "b")

	require.Equal(t, []string{"Volume 1", "Volume 2"}, d.titles)
	require.Equal(t, `added book #2 "Volume 2"`, m.status)
	require.False(t, m.failed)
}

func TestKeys_DriverErrorShownInStatus(t *testing.T) {
	d := &fakeDriver{addErr: errors.New("no reactor")}
	m := newModel(t, d)

	m = press(t, m, "b")

	require.True(t, m.failed)
	require.Equal(t, "no reactor", m.status)
	require.Contains(t, m.View(), "no reactor")
}

func TestKeys_MemberStatsRemount(t *testing.T) {
	d := &fakeDriver{}
	m := newModel(t, d)

	m = press(t, m, "m")
	require.Equal(t, "created member m-001", m.status)

	m = press(t, m, "s")
	require.Equal(t, "0 books, 1 members, 3 updates delivered", m.status)

	m = press(t, m, "r")
	require.Equal(t, 1, d.remounts)
	require.Equal(t, "library remounted", m.status)
}

func TestKeys_ToggleFlags(t *testing.T) {
	d := &fakeDriver{flags: flags.New(nil)}
	m := newModel(t, d)

	m = press(t, m, "t")
	require.True(t, d.flags.Enabled(flags.FlagDispatchTrace))
	require.Equal(t, "dispatch-trace on", m.status)
	require.Contains(t, m.View(), "trace:on")

	m = press(t, m, "t")
	require.False(t, d.flags.Enabled(flags.FlagDispatchTrace))

	// Suggestions default to on, so the first toggle turns them off.
	m = press(t, m, "n")
	require.False(t, d.flags.EnabledOr(flags.FlagNearMissSuggestions, true))
	require.Equal(t, "near-miss-suggestions off", m.status)
}

func TestKeys_ToggleFlagSaveError(t *testing.T) {
	d := &fakeDriver{flags: flags.New(nil), setErr: errors.New("read-only")}
	m := newModel(t, d)

	m = press(t, m, "t")
	require.True(t, m.failed)
	require.Contains(t, m.status, "saving flag dispatch-trace")
}

func TestKeys_ClearAndScroll(t *testing.T) {
	m := newModel(t, &fakeDriver{})
	for range 50 {
		updated, _ := m.Update(activity(reactor.ActivityActionAdded, "stats"))
		m = updated.(Model)
	}
	require.True(t, m.viewport.AtBottom())

	m = press(t, m, "g")
	require.False(t, m.following)
	require.True(t, m.viewport.AtTop())

	m = press(t, m, "G")
	require.True(t, m.following)

	m = press(t, m, "c")
	require.Empty(t, m.entries)
	require.Empty(t, m.counts)
}

func TestKeys_Quit(t *testing.T) {
	m := newModel(t, &fakeDriver{})
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestKeys_HelpExpands(t *testing.T) {
	m := newModel(t, &fakeDriver{})
	require.NotContains(t, m.View(), "toggle suggestions")
	m = press(t, m, "?")
	require.True(t, m.help.ShowAll)
	require.Contains(t, m.View(), "toggle suggestions")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestView_HeaderAndStatus_Golden(t *testing.T) {
	profile := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(profile) })

	d := &fakeDriver{flags: flags.New(nil)}
	m := newModel(t, d)
	m = press(t, m, "t")

	teatest.RequireEqualOutput(t, []byte(m.header()+"\n"+m.statusBar()))
}
