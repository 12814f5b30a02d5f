// Package styles contains Lip Gloss style definitions for the inspector.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/reactor/internal/reactor"
)

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"} // Reactor labels, keys
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, help text, removals

	// Semantic color names - Border
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	TitleColor         = lipgloss.AdaptiveColor{Light: "#1A5276", Dark: "#C9C9C9"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	StatusInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TitleColor).
			PaddingLeft(1)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor)

	// Flag badges in the header
	FlagOnStyle  = lipgloss.NewStyle().Foreground(StatusSuccessColor).Bold(true)
	FlagOffStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true)

	EmptyStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor).
			Italic(true)
)

// ActivityStyle returns the style an activity entry of kind is drawn with.
func ActivityStyle(kind reactor.ActivityKind) lipgloss.Style {
	switch kind {
	case reactor.ActivityError:
		return lipgloss.NewStyle().Foreground(StatusErrorColor)
	case reactor.ActivityDelivered:
		return lipgloss.NewStyle().Foreground(StatusSuccessColor)
	case reactor.ActivityReactorReady, reactor.ActivityReactorUnmounted:
		return lipgloss.NewStyle().Foreground(StatusInfoColor).Bold(true)
	case reactor.ActivityActionRemoved, reactor.ActivityActorRemoved,
		reactor.ActivityEventWithdrawn, reactor.ActivityUnsubscribed:
		return lipgloss.NewStyle().Foreground(TextMutedColor)
	default:
		return lipgloss.NewStyle().Foreground(TextPrimaryColor)
	}
}

// LogStyle returns the style of a formatted log line, keyed on its level tag.
func LogStyle(line string) lipgloss.Style {
	switch {
	case strings.Contains(line, "[ERROR]"):
		return lipgloss.NewStyle().Foreground(StatusErrorColor)
	case strings.Contains(line, "[WARN]"):
		return lipgloss.NewStyle().Foreground(StatusWarningColor)
	case strings.Contains(line, "[INFO]"):
		return lipgloss.NewStyle().Foreground(StatusInfoColor)
	default:
		return lipgloss.NewStyle().Foreground(TextMutedColor)
	}
}
