package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Logger appends events to a primary store and any number of mirrors.
// Reads are always served by the primary.
type Logger struct {
	primary   Store
	mirrors   []Store
	logger    *logger.Logger
	onFailure func(store string)
}

// Option configures a Logger
type Option func(*Logger)

// WithMirror adds a secondary store that receives every event
func WithMirror(store Store) Option {
	return func(l *Logger) {
		if store != nil {
			l.mirrors = append(l.mirrors, store)
		}
	}
}

// WithFailureHook registers a callback invoked once per failed store write
func WithFailureHook(fn func(store string)) Option {
	return func(l *Logger) { l.onFailure = fn }
}

// NewLogger creates an audit logger over the primary store
func NewLogger(primary Store, log *logger.Logger, opts ...Option) *Logger {
	if log == nil {
		log = logger.NewNop()
	}
	l := &Logger{
		primary: primary,
		logger:  log.WithComponent("audit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogEvent assigns an id and UTC timestamp if missing and appends the
// event everywhere. Every failed store is logged and reported in the
// returned error; a mirror failure does not stop the primary write.
func (l *Logger) LogEvent(ctx context.Context, event Event) (Event, error) {
	event = normalize(event)
	log := l.logger.WithProject(event.ProjectID)

	var errs []error
	for _, store := range append([]Store{l.primary}, l.mirrors...) {
		if err := store.Append(ctx, event); err != nil {
			var we *WriteError
			if !errors.As(err, &we) {
				err = &WriteError{Store: store.Name(), ProjectID: event.ProjectID, Cause: err}
			}
			log.Warn("Audit write failed",
				zap.String("store", store.Name()),
				zap.String("action", string(event.Action)),
				zap.String("event_id", event.EventID.String()),
				zap.Error(err))
			if l.onFailure != nil {
				l.onFailure(store.Name())
			}
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		log.Debug("Audit event recorded",
			zap.String("action", string(event.Action)),
			zap.String("event_id", event.EventID.String()))
	}
	return event, errors.Join(errs...)
}

// Events returns the most recent limit events for a project in insertion order
func (l *Logger) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	events, err := l.primary.Tail(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// Close closes every store
func (l *Logger) Close() error {
	var errs []error
	for _, store := range append([]Store{l.primary}, l.mirrors...) {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
