package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action names the engine operation an event records
type Action string

const (
	ActionDetect    Action = "detect"
	ActionScanItems Action = "scan_items"
	ActionScanText  Action = "scan_text"
	ActionRedact    Action = "redact"
	ActionValidate  Action = "validate"
)

// Event is one audit record. It is never mutated after being appended.
type Event struct {
	EventID     uuid.UUID         `json:"event_id" db:"event_id"`
	ProjectID   string            `json:"project_id" db:"project_id"`
	UserID      string            `json:"user_id" db:"user_id"`
	Action      Action            `json:"action" db:"action"`
	ResourceID  string            `json:"resource_id" db:"resource_id"`
	Timestamp   time.Time         `json:"timestamp_utc" db:"timestamp_utc"`
	Metadata    map[string]any    `json:"metadata" db:"-"`
	UserContext map[string]string `json:"user_context" db:"-"`
}

// Store persists events per project in insertion order
type Store interface {
	// Append adds one event to the end of the project's log
	Append(ctx context.Context, event Event) error
	// Tail returns the most recent limit events in insertion order.
	// A limit of zero or less returns every event.
	Tail(ctx context.Context, projectID string, limit int) ([]Event, error)
	Name() string
	Close() error
}

// WriteError reports a failed append. It never carries event contents.
type WriteError struct {
	Store     string
	ProjectID string
	Cause     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit write to %s for project %q failed: %v", e.Store, e.ProjectID, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// normalize fills the identity and timestamp of a new event
func normalize(event Event) Event {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.UserContext == nil {
		event.UserContext = map[string]string{}
	}
	return event
}
