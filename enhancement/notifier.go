package enhancement

import (
	"context"
	"log/slog"
	"time"
)

// EventKind names an outbound notification.
type EventKind string

const (
	EventStarted   EventKind = "enhancement_started"
	EventCompleted EventKind = "enhancement_completed"
	EventFailed    EventKind = "enhancement_failed"
)

// Event is delivered to the job owner.
type Event struct {
	Kind          EventKind `json:"kind"`
	JobID         string    `json:"job_id"`
	OwnerID       string    `json:"owner_id"`
	TenantID      string    `json:"tenant_id"`
	TotalRequests int       `json:"total_requests,omitempty"`
	UpdatedChunks int       `json:"updated_chunks,omitempty"`
	Errors        int       `json:"errors,omitempty"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// Notifier delivers events. Delivery failures are logged by the manager and
// never change job state.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "enhancement-notifier")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	n.logger.InfoContext(ctx, "enhancement event",
		"kind", e.Kind,
		"job_id", e.JobID,
		"owner_id", e.OwnerID,
		"tenant_id", e.TenantID,
		"updated_chunks", e.UpdatedChunks,
		"errors", e.Errors,
		"message", e.Message,
	)
	return nil
}
