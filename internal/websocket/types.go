package websocket

import (
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeBatchProgress reports items processed in a running batch
	EventTypeBatchProgress EventType = "batch_progress"
	// EventTypeStreamProgress reports one scanned stream chunk
	EventTypeStreamProgress EventType = "stream_progress"
	// EventTypeAudit mirrors an appended audit record without user context
	EventTypeAudit EventType = "audit_event"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BatchProgressEvent carries counts only
type BatchProgressEvent struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// StreamProgressEvent describes one chunk by position and outcome
type StreamProgressEvent struct {
	RunID   string `json:"run_id"`
	Index   int    `json:"index"`
	Offset  int64  `json:"offset"`
	Bytes   int    `json:"bytes"`
	Flagged bool   `json:"flagged"`
}

// AuditEvent is the broadcast view of an audit record
type AuditEvent struct {
	EventID    string    `json:"event_id"`
	ProjectID  string    `json:"project_id"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp_utc"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	PatternKinds     int      `json:"pattern_kinds"`
	EntityRecognizer string   `json:"entity_recognizer"`
	Sensitivity      string   `json:"sensitivity"`
	ConnectedClients int      `json:"connected_clients"`
	Warnings         []string `json:"warnings,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows the event types a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         interface{} // *websocket.Conn outside tests
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
