package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresConfig contains database configuration
type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const schema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		seq           BIGSERIAL PRIMARY KEY,
		event_id      UUID NOT NULL UNIQUE,
		project_id    TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		timestamp_utc TIMESTAMPTZ NOT NULL,
		metadata      JSONB NOT NULL,
		user_context  JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_project_seq ON audit_events (project_id, seq)`

// PostgresStore mirrors the audit trail into an insert-only table. Rows are
// ordered by a sequence so insertion order per project survives.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// eventRow is the database shape of an Event
type eventRow struct {
	Event
	MetadataJSON    []byte `db:"metadata"`
	UserContextJSON []byte `db:"user_context"`
}

// NewPostgresStore connects and ensures the table exists
func NewPostgresStore(config PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit database store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

func (s *PostgresStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// Append inserts one row
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	userContext, err := json.Marshal(event.UserContext)
	if err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}

	query := `
		INSERT INTO audit_events (event_id, project_id, user_id, action, resource_id, timestamp_utc, metadata, user_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.ExecContext(ctx, query,
		event.EventID,
		event.ProjectID,
		event.UserID,
		string(event.Action),
		event.ResourceID,
		event.Timestamp,
		metadata,
		userContext,
	)
	if err != nil {
		return &WriteError{Store: s.Name(), ProjectID: event.ProjectID, Cause: err}
	}
	return nil
}

// Tail selects the newest rows and returns them oldest first
func (s *PostgresStore) Tail(ctx context.Context, projectID string, limit int) ([]Event, error) {
	query := `
		SELECT event_id, project_id, user_id, action, resource_id, timestamp_utc, metadata, user_context
		FROM audit_events
		WHERE project_id = $1
		ORDER BY seq DESC`
	args := []interface{}{projectID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	events := make([]Event, len(rows))
	for i, row := range rows {
		event := row.Event
		if err := json.Unmarshal(row.MetadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
		if err := json.Unmarshal(row.UserContextJSON, &event.UserContext); err != nil {
			return nil, fmt.Errorf("failed to decode audit user context: %w", err)
		}
		event.Timestamp = event.Timestamp.UTC()
		events[len(rows)-1-i] = event
	}
	return events, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a postgres URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	// the scheme separator is not a password delimiter
	if colon < 0 || colon < strings.Index(userPart, "://")+3 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
