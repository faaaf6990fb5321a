// Package audit records served calls in a SQL table.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventType represents the type of audit event
type EventType string

const (
	EventCall         EventType = "call"
	EventCallError    EventType = "call_error"
	EventUnauthorized EventType = "unauthorized"
	EventForbidden    EventType = "forbidden"
)

// Event is one audit log entry.
type Event struct {
	ID        string `db:"id"`
	EventType string `db:"event_type"`
	Timestamp int64  `db:"timestamp"`
	RequestID string `db:"request_id"`
	Caller    string `db:"caller"`
	Protocol  string `db:"protocol"`
	Call      string `db:"call_name"`
	// RequestFingerprint is a SHA-256 of the request text; tokens may carry
	// player ids and are not stored.
	RequestFingerprint string `db:"request_fingerprint"`
	DurationMillis     int64  `db:"duration_ms"`
}

// Logger writes audit events to a database.
type Logger struct {
	db *sqlx.DB
}

func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{db: db}, nil
}

// DBInit creates the audit table and its indexes.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS call_audit (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		caller TEXT NOT NULL DEFAULT '',
		protocol TEXT NOT NULL DEFAULT '',
		call_name TEXT NOT NULL DEFAULT '',
		request_fingerprint TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_call_audit_timestamp ON call_audit(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_call_audit_protocol ON call_audit(protocol)`)
	return err
}

func fingerprint(request string) string {
	if request == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(request))
	return hex.EncodeToString(hash[:])
}

func (l *Logger) insertEvent(event *Event) error {
	_, err := l.db.NamedExec(`
		INSERT INTO call_audit (
			id, event_type, timestamp, request_id, caller,
			protocol, call_name, request_fingerprint, duration_ms
		) VALUES (
			:id, :event_type, :timestamp, :request_id, :caller,
			:protocol, :call_name, :request_fingerprint, :duration_ms
		)`, event)
	return err
}

// LogCall records a served call. result is the text returned to the caller
// and decides between EventCall and EventCallError.
func (l *Logger) LogCall(requestID, caller, protocol, request, result string, took time.Duration) error {
	eventType := EventCall
	if !strings.HasPrefix(result, "[1,") {
		eventType = EventCallError
	}
	name, _, _ := strings.Cut(request, ":")
	return l.insertEvent(&Event{
		ID:                 uuid.New().String(),
		EventType:          string(eventType),
		Timestamp:          time.Now().UTC().Unix(),
		RequestID:          requestID,
		Caller:             caller,
		Protocol:           protocol,
		Call:               name,
		RequestFingerprint: fingerprint(request),
		DurationMillis:     took.Milliseconds(),
	})
}

// LogDenied records a request rejected before reaching a protocol.
func (l *Logger) LogDenied(eventType EventType, requestID, caller, protocol string) error {
	return l.insertEvent(&Event{
		ID:        uuid.New().String(),
		EventType: string(eventType),
		Timestamp: time.Now().UTC().Unix(),
		RequestID: requestID,
		Caller:    caller,
		Protocol:  protocol,
	})
}

// EventsByProtocol retrieves the most recent events of one protocol.
func (l *Logger) EventsByProtocol(protocol string, limit int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events, l.db.Rebind(
		"SELECT * FROM call_audit WHERE protocol = ? ORDER BY timestamp DESC LIMIT ?"),
		protocol, limit)
	return events, err
}

// RecentEvents retrieves the most recent audit events
func (l *Logger) RecentEvents(limit int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events, l.db.Rebind(
		"SELECT * FROM call_audit ORDER BY timestamp DESC LIMIT ?"),
		limit)
	return events, err
}

// DeleteOldEvents deletes audit events older than the specified duration
func (l *Logger) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec(l.db.Rebind("DELETE FROM call_audit WHERE timestamp < ?"), threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
