package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType identifies what happened to a call.
type EventType string

const (
	EventCallIngested          EventType = "call_ingested"
	EventInsightsStarted       EventType = "insights_started"
	EventInsightsCompleted     EventType = "insights_completed"
	EventModelFault            EventType = "model_fault"
	EventRecommendationsServed EventType = "recommendations_served"
	EventStreamStarted         EventType = "stream_started"
	EventStreamStopped         EventType = "stream_stopped"
	EventListenerAttached      EventType = "listener_attached"
	EventListenerDetached      EventType = "listener_detached"
	EventListenerDropped       EventType = "listener_dropped"
)

// Logger writes call events to the database for operational debugging.
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event synchronously. A nil pool or empty call ID is a
// silent no-op so callers never need to guard logging.
func (l *Logger) Log(ctx context.Context, callID string, eventType EventType, data map[string]any) error {
	if l.db == nil || callID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller. Used on hot paths
// (broadcast, websocket attach) where a slow insert must not stall delivery.
func (l *Logger) LogAsync(callID string, eventType EventType, data map[string]any) {
	if l.db == nil || callID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, callID, eventType, data)
	}()
}
