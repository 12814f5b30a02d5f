package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FileExporter writes spans as JSON lines, one dispatch per line, for
// inspection with jq. It implements sdktrace.SpanExporter.
type FileExporter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewFileExporter opens path for appending, creating it and its parent
// directories as needed.
func NewFileExporter(path string) (*FileExporter, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: file, enc: json.NewEncoder(file)}, nil
}

// ExportSpans appends one DispatchRecord per span.
func (e *FileExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return fmt.Errorf("trace file closed")
	}
	for _, span := range spans {
		if err := e.enc.Encode(NewDispatchRecord(span)); err != nil {
			return fmt.Errorf("encode span: %w", err)
		}
	}
	return nil
}

// Shutdown closes the file. Further exports fail.
func (e *FileExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// DispatchRecord is the JSON line written for one dispatch span. The
// dispatch attributes are lifted into fields; anything else stays in Extra.
type DispatchRecord struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	Event        string         `json:"event,omitempty"`
	Target       string         `json:"target,omitempty"`
	HandledBy    int64          `json:"handled_by"`
	Stopped      bool           `json:"stopped"`
	Start        string         `json:"start"`
	DurationMs   float64        `json:"duration_ms"`
	Status       string         `json:"status"`
	StatusMsg    string         `json:"status_message,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// NewDispatchRecord converts a finished span.
func NewDispatchRecord(span sdktrace.ReadOnlySpan) DispatchRecord {
	sc := span.SpanContext()
	rec := DispatchRecord{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime().Format(time.RFC3339Nano),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000.0,
		Status:     statusString(span.Status().Code),
		StatusMsg:  span.Status().Description,
	}
	if span.Parent().IsValid() {
		rec.ParentSpanID = span.Parent().SpanID().String()
	}

	for _, kv := range span.Attributes() {
		switch kv.Key {
		case AttrEventKey:
			rec.Event = kv.Value.AsString()
		case AttrEventTarget:
			rec.Target = kv.Value.AsString()
		case AttrEventHandledBy:
			rec.HandledBy = kv.Value.AsInt64()
		case AttrEventStopped:
			rec.Stopped = kv.Value.AsBool()
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[string(kv.Key)] = kv.Value.AsInterface()
		}
	}

	for _, evt := range span.Events() {
		if evt.Name != "exception" {
			continue
		}
		for _, kv := range evt.Attributes {
			if kv.Key == attribute.Key("exception.message") {
				rec.Errors = append(rec.Errors, kv.Value.AsString())
			}
		}
	}
	return rec
}

func statusString(code codes.Code) string {
	switch code {
	case codes.Ok:
		return "OK"
	case codes.Error:
		return "ERROR"
	default:
		return "UNSET"
	}
}
