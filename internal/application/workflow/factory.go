package workflow

import (
	domainwf "github.com/garyjia/store-approval/internal/domain/workflow"
)

// BuildInstanceStateMachine creates a state machine for the instance status lifecycle
func BuildInstanceStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerComplete, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled).
		Permit(domainwf.TriggerTimeout, domainwf.StateTimeout)

	// Timeout is the only terminal status an operator can undo
	builder.Configure(domainwf.StateTimeout).
		Permit(domainwf.TriggerReopen, domainwf.StatePending)

	return builder.Build(initialState)
}
