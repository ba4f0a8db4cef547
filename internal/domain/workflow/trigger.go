package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerComplete fires when routing reaches an end node
	TriggerComplete Trigger = "COMPLETE"
	TriggerReject   Trigger = "REJECT"
	TriggerCancel   Trigger = "CANCEL"
	TriggerTimeout  Trigger = "TIMEOUT"
	TriggerReopen   Trigger = "REOPEN"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
