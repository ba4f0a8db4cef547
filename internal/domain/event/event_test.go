package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "created", eventType: TypeInstanceCreated, want: true},
		{name: "node entered", eventType: TypeNodeEntered, want: true},
		{name: "held", eventType: TypeInstanceHeld, want: true},
		{name: "refused", eventType: TypeActionRefused, want: true},
		{name: "unknown", eventType: Type("unknown.type"), want: false},
		{name: "empty", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsTerminal(t *testing.T) {
	terminal := []Type{TypeInstanceApproved, TypeInstanceRejected, TypeInstanceCancelled, TypeInstanceTimeout}
	for _, typ := range terminal {
		if !typ.IsTerminal() {
			t.Errorf("%s should be terminal", typ)
		}
	}
	for _, typ := range []Type{TypeInstanceCreated, TypeNodeEntered, TypeInstanceReopened, TypeInstanceHeld} {
		if typ.IsTerminal() {
			t.Errorf("%s should not be terminal", typ)
		}
	}
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e := NewEvent(TypeNodeEntered, "inst-1", "AP-20240301-ABC123", map[string]any{
		KeyApprovers: []string{"u1", "u2"},
	}, at)

	if e.ID == "" || e.CorrelationID == "" {
		t.Fatal("event ids should be generated")
	}
	if e.InstanceID != "inst-1" || e.InstanceCode != "AP-20240301-ABC123" {
		t.Errorf("unexpected instance reference %s/%s", e.InstanceID, e.InstanceCode)
	}
	if !e.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, at)
	}
	if got := e.GetPayloadStrings(KeyApprovers); len(got) != 2 || got[1] != "u2" {
		t.Errorf("GetPayloadStrings() = %v", got)
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	e := NewEvent(TypeInstanceCreated, "i", "c", nil, time.Now())
	if e.Payload == nil {
		t.Fatal("payload should default to an empty map")
	}
	if got := e.GetPayloadString("missing"); got != "" {
		t.Errorf("GetPayloadString() = %q, want empty", got)
	}
}

func TestEvent_WithPayloadDoesNotMutateOriginal(t *testing.T) {
	original := NewEvent(TypeInstanceCreated, "i", "c", map[string]any{KeyTitle: "Store #12"}, time.Now())
	modified := original.WithPayload(KeyReason, "budget")

	if _, exists := original.Payload[KeyReason]; exists {
		t.Error("original event should not be modified")
	}
	if modified.GetPayloadString(KeyTitle) != "Store #12" || modified.GetPayloadString(KeyReason) != "budget" {
		t.Errorf("modified payload = %v", modified.Payload)
	}
	if modified.ID != original.ID || modified.CorrelationID != original.CorrelationID {
		t.Error("identity fields should be copied")
	}
}

func TestEvent_GetPayloadStringsFromAnySlice(t *testing.T) {
	e := NewEvent(TypeNodeEntered, "i", "c", map[string]any{KeyApprovers: []any{"u1", 3, "u2"}}, time.Now())
	got := e.GetPayloadStrings(KeyApprovers)
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("GetPayloadStrings() = %v", got)
	}
}

func TestEvent_GetPayloadTime(t *testing.T) {
	deadline := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	e := NewEvent(TypeNodeEntered, "i", "c", map[string]any{KeyDeadline: &deadline}, time.Now())

	got, ok := e.GetPayloadTime(KeyDeadline)
	if !ok || !got.Equal(deadline) {
		t.Errorf("GetPayloadTime() = %v, %v", got, ok)
	}
	if _, ok := e.GetPayloadTime("missing"); ok {
		t.Error("missing key should report false")
	}
}

func TestEvent_CorrelationChain(t *testing.T) {
	first := NewEvent(TypeInstanceCreated, "i", "c", nil, time.Now())
	second := NewEventWithCorrelation(TypeNodeEntered, "i", "c", nil, time.Now(), first.CorrelationID)

	if second.CorrelationID != first.CorrelationID {
		t.Error("second event should share the correlation id")
	}
	if second.ID == first.ID {
		t.Error("events should have unique IDs")
	}
}
