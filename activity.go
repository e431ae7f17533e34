package sessionguard

import (
	"context"
	"time"
)

// ActivityEventType enumerates session lifecycle events.
type ActivityEventType string

const (
	ActivityEventSessionStarted    ActivityEventType = "session.started"
	ActivityEventSessionCleared    ActivityEventType = "session.cleared"
	ActivityEventSessionTerminated ActivityEventType = "session.terminated"
)

// ActivityEvent captures audit-friendly information about a session
// transition.
type ActivityEvent struct {
	EventType  ActivityEventType
	AccountID  string
	Generation uint64
	Reason     TerminationReason
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged and never block termination.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
