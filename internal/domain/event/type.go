package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated   Type = "instance.created"
	TypeNodeEntered       Type = "node.entered"
	TypeInstanceApproved  Type = "instance.approved"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeInstanceTimeout   Type = "instance.timeout"
	TypeInstanceReopened  Type = "instance.reopened"
	TypeInstanceHeld      Type = "instance.held"
	TypeActionRecorded    Type = "action.recorded"
	TypeActionRefused     Type = "action.refused"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeNodeEntered,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeInstanceCancelled,
		TypeInstanceTimeout,
		TypeInstanceReopened,
		TypeInstanceHeld,
		TypeActionRecorded,
		TypeActionRefused:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event announces a status the applicant should hear about
func (t Type) IsTerminal() bool {
	switch t {
	case TypeInstanceApproved, TypeInstanceRejected, TypeInstanceCancelled, TypeInstanceTimeout:
		return true
	}
	return false
}
