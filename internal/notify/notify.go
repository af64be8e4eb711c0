// Package notify fans detection and response events out to interested
// consumers: the websocket hub backing the live dashboard and an optional
// NATS publisher for external systems.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/user/vncguard/internal/util"
)

// Event kinds.
const (
	EventAnomalyDetected = "anomaly_detected"
	EventThreatRecorded  = "threat_recorded"
	EventIPBlocked       = "ip_blocked"
	EventIPUnblocked     = "ip_unblocked"
	EventSessionStarted  = "session_started"
	EventSessionEnded    = "session_ended"
)

// Event is one notification emitted by the pipeline.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(eventType string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Encode serializes the event for transport.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives events. Implementations must not block the caller for long;
// delivery is best effort.
type Sink interface {
	Publish(event Event)
	Close() error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
func (NopSink) Close() error  { return nil }

// MultiSink delivers each event to every wrapped sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink wraps the given sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Publish(event Event) {
	for _, s := range m.sinks {
		s.Publish(event)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logPublish records delivery failures without failing the pipeline.
func logPublish(sink string, err error) {
	if err != nil {
		util.Warn("notify: %s publish failed: %v", sink, err)
	}
}
