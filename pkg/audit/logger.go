// Package audit emits structured JSON operational events for chain and anchor
// activity. This is a best-effort side channel: callers ignore write errors
// and never block the decision path on logging.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventDecision EventType = "DECISION"
	EventVerify   EventType = "VERIFY"
	EventAnchor   EventType = "ANCHOR"
	EventSystem   EventType = "SYSTEM"
)

// Event is a structured operational record.
type Event struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger records operational events.
type Logger interface {
	Record(agentID string, eventType EventType, action string, metadata map[string]any) error
}

// logger writes JSON events to a configurable writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stderr.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stderr)
}

// NewLoggerWithWriter creates a Logger writing to w. Injection point for
// tests and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &logger{writer: w}
}

func (l *logger) Record(agentID string, eventType EventType, action string, metadata map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Type:      eventType,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix for easy filtering alongside application output.
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// Nop returns a Logger that discards every event.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Record(string, EventType, string, map[string]any) error { return nil }
