package authflow

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionStarted   ActivityEventType = "session.started"
	ActivityEventSessionEnded     ActivityEventType = "session.ended"
	ActivityEventIdleTimeout      ActivityEventType = "session.idle_timeout"
	ActivityEventProfileLoadError ActivityEventType = "profile.load.failure"
	ActivityEventProfileCompleted ActivityEventType = "profile.setup.completed"
	ActivityEventRedirectApplied  ActivityEventType = "navigation.redirect"
	ActivityEventCodeVerified     ActivityEventType = "auth.code.verified"
	ActivityEventCodeFailure      ActivityEventType = "auth.code.failure"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// NewActivityEvent stamps an event with the current time.
func NewActivityEvent(kind ActivityEventType, userID string, metadata map[string]any) ActivityEvent {
	return ActivityEvent{
		EventType:  kind,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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
