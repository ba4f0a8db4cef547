package workflow

import "github.com/garyjia/store-approval/internal/domain/entity"

// State represents an instance status as seen by the state machine
type State string

const (
	StatePending   State = State(entity.StatusPending)
	StateApproved  State = State(entity.StatusApproved)
	StateRejected  State = State(entity.StatusRejected)
	StateCancelled State = State(entity.StatusCancelled)
	StateTimeout   State = State(entity.StatusTimeout)
)

var validStates = map[State]bool{
	StatePending:   true,
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
	StateTimeout:   true,
}

// finalStates have no outgoing transition at all
var finalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// FromStatus converts an instance status
func FromStatus(s entity.InstanceStatus) State {
	return State(s)
}

// Status converts back to the instance status
func (s State) Status() entity.InstanceStatus {
	return entity.InstanceStatus(s)
}

// IsFinal returns true if no transition leaves the state
func (s State) IsFinal() bool {
	return finalStates[s]
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
