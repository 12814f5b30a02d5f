// Package inspector is a terminal view of a running reactor tree. It tails
// the activity stream and the log, and drives the demo library through
// key bindings so registrations, deliveries and errors can be watched live.
package inspector

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/reactor/internal/demo"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/keys"
	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/reactor"
	"github.com/zjrosen/reactor/internal/ui/styles"
)

const (
	maxEntries     = 1000
	logPaneHeight  = 8
	chromeHeight   = 5 // title, status bar, help and the pane border
	minPaneHeight  = 3
	minPaneWidth   = 20
	headerSpacing  = "  "
)

// Driver performs library operations on the tree's goroutine.
type Driver interface {
	AddBook(title string) (demo.Book, error)
	CreateMember(name string) (string, error)
	Stats() (demo.Stats, error)
	Remount() error
	Flags() *flags.Registry
	SetFlag(name string, on bool) error
}

// Config holds what the inspector watches and drives.
type Config struct {
	Activity pubsub.Subscriber[reactor.Activity]
	Logs     *log.LogListener
	Driver   Driver
}

// resultMsg carries the outcome of a driver call back to Update.
type resultMsg struct {
	text string
	err  error
}

type entry struct {
	kind reactor.ActivityKind
	text string
}

// Model is the inspector state.
type Model struct {
	activity *pubsub.ContinuousListener[reactor.Activity]
	logs     *log.LogListener
	driver   Driver
	keys     keys.KeyMap
	help     help.Model

	entries  []entry
	logLines []string
	counts   map[reactor.ActivityKind]int
	status   string
	failed   bool
	showLogs bool
	titles   int

	width     int
	height    int
	viewport  viewport.Model
	logPane   viewport.Model
	following bool
}

// New creates an inspector subscribed to cfg.Activity until ctx ends.
func New(ctx context.Context, cfg Config) Model {
	m := Model{
		logs:      cfg.Logs,
		driver:    cfg.Driver,
		keys:      keys.Inspector,
		help:      help.New(),
		counts:    make(map[reactor.ActivityKind]int),
		following: true,
		showLogs:  cfg.Logs != nil,
	}
	if cfg.Activity != nil {
		m.activity = pubsub.NewContinuousListener(ctx, cfg.Activity)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.activity != nil {
		cmds = append(cmds, m.activity.Listen())
	}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[reactor.Activity]:
		if m.activity == nil {
			return m, nil
		}
		m.appendEntry(msg.Payload)
		m.refreshViewport()
		return m, m.activity.Listen()

	case log.LogEvent:
		if m.logs == nil {
			return m, nil
		}
		m.logLines = append(m.logLines, strings.TrimSuffix(msg.Payload, "\n"))
		if len(m.logLines) > maxEntries {
			m.logLines = m.logLines[len(m.logLines)-maxEntries:]
		}
		m.refreshViewport()
		return m, m.logs.Listen()

	case resultMsg:
		m.failed = msg.err != nil
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.text
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.viewport.ScrollUp(1)
		m.following = m.viewport.AtBottom()
	case key.Matches(msg, m.keys.Down):
		m.viewport.ScrollDown(1)
		m.following = m.viewport.AtBottom()
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		m.following = false
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		m.following = true
	case key.Matches(msg, m.keys.Clear):
		m.entries = nil
		m.logLines = nil
		clear(m.counts)
		m.status = ""
		m.refreshViewport()
	case key.Matches(msg, m.keys.ToggleLogs):
		m.showLogs = !m.showLogs
		m.refreshViewport()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.refreshViewport()
	case key.Matches(msg, m.keys.AddBook):
		m.titles++
		return m, m.addBook(fmt.Sprintf("Volume %d", m.titles))
	case key.Matches(msg, m.keys.CreateMember):
		return m, m.createMember()
	case key.Matches(msg, m.keys.Stats):
		return m, m.stats()
	case key.Matches(msg, m.keys.Remount):
		return m, m.remount()
	case key.Matches(msg, m.keys.ToggleTrace):
		return m, m.toggleFlag(flags.FlagDispatchTrace, false)
	case key.Matches(msg, m.keys.ToggleSuggestions):
		return m, m.toggleFlag(flags.FlagNearMissSuggestions, true)
	}
	return m, nil
}

func (m Model) addBook(title string) tea.Cmd {
	d := m.driver
	return func() tea.Msg {
		book, err := d.AddBook(title)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: fmt.Sprintf("added book #%d %q", book.ID, book.Title)}
	}
}

func (m Model) createMember() tea.Cmd {
	d, n := m.driver, len(m.entries)
	return func() tea.Msg {
		id, err := d.CreateMember(fmt.Sprintf("member-%d", n))
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: "created member " + id}
	}
}

func (m Model) stats() tea.Cmd {
	d := m.driver
	return func() tea.Msg {
		s, err := d.Stats()
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: fmt.Sprintf("%d books, %d members, %d updates delivered", s.Books, s.Members, s.Updates)}
	}
}

func (m Model) remount() tea.Cmd {
	d := m.driver
	return func() tea.Msg {
		if err := d.Remount(); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: "library remounted"}
	}
}

// toggleFlag flips name; fallback is its value when unset.
func (m Model) toggleFlag(name string, fallback bool) tea.Cmd {
	d := m.driver
	return func() tea.Msg {
		on := !d.Flags().EnabledOr(name, fallback)
		if err := d.SetFlag(name, on); err != nil {
			return resultMsg{err: fmt.Errorf("saving flag %s: %w", name, err)}
		}
		return resultMsg{text: fmt.Sprintf("%s %s", name, onOff(on))}
	}
}

func (m *Model) appendEntry(a reactor.Activity) {
	m.counts[a.Kind]++
	m.entries = append(m.entries, entry{kind: a.Kind, text: a.String()})
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(styles.PaneStyle.Width(m.paneWidth()).Render(m.viewport.View()))
	b.WriteString("\n")
	if m.showLogs {
		b.WriteString(styles.PaneStyle.Width(m.paneWidth()).Render(m.logPane.View()))
		b.WriteString("\n")
	}
	b.WriteString(m.statusBar())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	title := styles.TitleStyle.Render("Reactor activity")
	counts := styles.FlagOffStyle.Render(fmt.Sprintf("%d entries, %d errors", len(m.entries), m.counts[reactor.ActivityError]))
	parts := []string{title, counts}
	if m.driver != nil {
		f := m.driver.Flags()
		parts = append(parts,
			flagBadge("trace", f.Enabled(flags.FlagDispatchTrace)),
			flagBadge("suggest", f.EnabledOr(flags.FlagNearMissSuggestions, true)))
	}
	return strings.Join(parts, headerSpacing)
}

func (m Model) statusBar() string {
	if m.status == "" {
		return styles.StatusBarStyle.Render(" ")
	}
	if m.failed {
		return styles.StatusBarStyle.Inherit(styles.ErrorStyle).Render(m.status)
	}
	return styles.StatusBarStyle.Render(m.status)
}

func flagBadge(name string, on bool) string {
	if on {
		return styles.FlagOnStyle.Render(name + ":on")
	}
	return styles.FlagOffStyle.Render(name + ":off")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// refreshViewport rebuilds both panes for the current size and content.
func (m *Model) refreshViewport() {
	if m.width == 0 || m.height == 0 {
		return
	}
	width := m.paneWidth()
	helpLines := lipgloss.Height(m.help.View(m.keys))
	height := m.height - chromeHeight - helpLines + 1
	if m.showLogs {
		height -= logPaneHeight + 2
	}
	height = max(height, minPaneHeight)

	offset := m.viewport.YOffset
	m.viewport = viewport.New(width, height)
	m.viewport.SetContent(m.activityContent(width))
	if m.following {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(offset)
	}

	m.logPane = viewport.New(width, logPaneHeight)
	m.logPane.SetContent(m.logContent(width))
	m.logPane.GotoBottom()
}

func (m Model) paneWidth() int {
	return max(m.width-2, minPaneWidth)
}

func (m Model) activityContent(width int) string {
	if len(m.entries) == 0 {
		return styles.EmptyStyle.Render("No activity yet")
	}
	lines := make([]string, len(m.entries))
	for i, e := range m.entries {
		lines[i] = styles.ActivityStyle(e.kind).Render(truncate(e.text, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) logContent(width int) string {
	if len(m.logLines) == 0 {
		return styles.EmptyStyle.Render("No logs to display")
	}
	lines := make([]string, len(m.logLines))
	for i, l := range m.logLines {
		lines[i] = styles.LogStyle(l).Render(truncate(l, width))
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to width cells including the ellipsis, ANSI-aware.
func truncate(s string, width int) string {
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
