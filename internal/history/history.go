package history

import (
	"context"
	"time"
)

// Kind classifies a lifecycle event.
type Kind string

const (
	KindStarted      Kind = "started"
	KindStopped      Kind = "stopped"
	KindDegraded     Kind = "degraded"
	KindLaunchFailed Kind = "launch_failed"
)

// Event is one lifecycle transition of a managed service as observed by the
// orchestrator. Detail carries the human-readable cause for failures.
type Event struct {
	ID         int64
	Service    string
	PID        int
	Kind       Kind
	Detail     string
	OccurredAt time.Time
}

// Store persists lifecycle events. Writes are advisory: the orchestrator
// never fails an operation because history could not be recorded.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, e Event) error
	// Recent returns the newest events, optionally filtered by service
	// (empty service = all), newest first.
	Recent(ctx context.Context, service string, limit int) ([]Event, error)
	Close() error
}
