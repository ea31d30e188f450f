// Package notify defines the outbound status-topic message and the custom
// JSON shape it serialises to: trace fields are present only when the
// event is Failed.
package notify

import (
	"encoding/json"
	"time"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
)

// Message is the notification published on the status topic whenever a job
// transitions state.
type Message struct {
	RunName   string
	UTCTime   time.Time
	Event     jobstate.State
	TraceName string
	TraceExit *int
}

// wireMessage is the on-the-wire shape; trace_name/trace_exit are omitted
// unless Event is Failed, even if the struct carries a zero trace.
type wireMessage struct {
	RunName   string         `json:"run_name"`
	UTCTime   time.Time      `json:"utc_time"`
	Event     jobstate.State `json:"event"`
	TraceName string         `json:"trace_name,omitempty"`
	TraceExit *int           `json:"trace_exit,omitempty"`
}

// MarshalJSON drops trace fields for any event other than Failed, per the
// notification-shape testable property.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		RunName: m.RunName,
		UTCTime: m.UTCTime,
		Event:   m.Event,
	}
	if m.Event == jobstate.Failed {
		w.TraceName = m.TraceName
		w.TraceExit = m.TraceExit
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire shape verbatim.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.RunName = w.RunName
	m.UTCTime = w.UTCTime
	m.Event = w.Event
	m.TraceName = w.TraceName
	m.TraceExit = w.TraceExit
	return nil
}

// New builds a notification for a non-failure event.
func New(runName string, event jobstate.State) Message {
	return Message{RunName: runName, UTCTime: time.Now().UTC(), Event: event}
}

// NewFailed builds a Failed notification carrying trace diagnostics.
func NewFailed(runName, traceName string, traceExit int) Message {
	return Message{
		RunName:   runName,
		UTCTime:   time.Now().UTC(),
		Event:     jobstate.Failed,
		TraceName: traceName,
		TraceExit: &traceExit,
	}
}
