package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/reactor/internal/config"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "noop")
	require.False(t, span.IsRecording())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(config.TracingConfig{
		Enabled:    true,
		Exporter:   "file",
		FilePath:   tracePath,
		SampleRate: 1.0,
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), SpanPrefixDispatch+"ping")
	require.True(t, span.IsRecording())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"dispatch.ping"`)
}

func TestNewProvider_NoneExporter(t *testing.T) {
	provider, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	require.True(t, provider.Enabled())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "file"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "file_path required")

	_, err = NewProvider(config.TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter type")
}
