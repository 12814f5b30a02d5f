package styles

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/reactor/internal/reactor"
)

func TestActivityStyle_ErrorsUseErrorColor(t *testing.T) {
	require.Equal(t, StatusErrorColor, ActivityStyle(reactor.ActivityError).GetForeground())
	require.Equal(t, StatusSuccessColor, ActivityStyle(reactor.ActivityDelivered).GetForeground())
	require.Equal(t, TextMutedColor, ActivityStyle(reactor.ActivityUnsubscribed).GetForeground())
	require.Equal(t, TextPrimaryColor, ActivityStyle(reactor.ActivityActionAdded).GetForeground())
	require.True(t, ActivityStyle(reactor.ActivityReactorReady).GetBold())
}

func TestLogStyle_ByLevel(t *testing.T) {
	tests := []struct {
		line string
		want any
	}{
		{"2025-01-01T00:00:00 [ERROR] [reactor] boom", StatusErrorColor},
		{"2025-01-01T00:00:00 [WARN] [pubsub] gave up", StatusWarningColor},
		{"2025-01-01T00:00:00 [INFO] [config] reloaded", StatusInfoColor},
		{"2025-01-01T00:00:00 [DEBUG] [dispatch] walk", TextMutedColor},
		{"no level", TextMutedColor},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LogStyle(tt.line).GetForeground(), tt.line)
	}
}
