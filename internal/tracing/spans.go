package tracing

// Span attribute keys for dispatch tracing.
const (
	AttrEventKey       = "event.key"
	AttrEventTarget    = "event.target"
	AttrEventSingle    = "event.single"
	AttrEventMultiple  = "event.multiple"
	AttrEventHandledBy = "event.handled_by"
	AttrEventStopped   = "event.stopped"
)

// SpanPrefixDispatch prefixes the event key in span names.
const SpanPrefixDispatch = "dispatch."
