package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and subscribers
const (
	KeyApprovers = "approvers"
	KeyApplicant = "applicant"
	KeyTitle     = "title"
	KeyNodeID    = "node_id"
	KeyNodeName  = "node_name"
	KeyActor     = "actor"
	KeyAction    = "action"
	KeyStatus    = "status"
	KeyReason    = "reason"
	KeyCode      = "code"
	KeyDeadline  = "deadline"
)

// Event represents a domain event
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	InstanceID    string         `json:"instance_id"`
	InstanceCode  string         `json:"instance_code"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a domain event with a fresh ID; the caller supplies the time so events follow the engine clock
func NewEvent(eventType Type, instanceID, instanceCode string, payload map[string]any, at time.Time) *Event {
	return NewEventWithCorrelation(eventType, instanceID, instanceCode, payload, at, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, instanceID, instanceCode string, payload map[string]any, at time.Time, correlationID string) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		InstanceID:    instanceID,
		InstanceCode:  instanceCode,
		Payload:       payload,
		Timestamp:     at,
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value any) *Event {
	c := *e
	c.Payload = maps.Clone(e.Payload)
	if c.Payload == nil {
		c.Payload = map[string]any{}
	}
	c.Payload[key] = value
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadStrings retrieves a string list from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetPayloadTime retrieves a time value from the payload
func (e *Event) GetPayloadTime(key string) (time.Time, bool) {
	switch v := e.Payload[key].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	}
	return time.Time{}, false
}
