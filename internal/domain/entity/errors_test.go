package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesSentinelByCode(t *testing.T) {
	err := NewNotFoundError("instance", "abc")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, CodeNotFound, err.Code())
	assert.Contains(t, err.Error(), "instance abc not found")
}

func TestError_WrappedKeepsCode(t *testing.T) {
	cause := errors.New("directory timeout")
	err := fmt.Errorf("enter node: %w", NewUnresolvedApproverError("n1", cause))

	assert.True(t, errors.Is(err, ErrUnresolvedApprover))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeUnresolvedApprover, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
}

func TestNewInvalidTemplateError_ListsViolations(t *testing.T) {
	err := NewInvalidTemplateError([]Violation{
		{NodeID: "a", Message: "unreachable from start"},
		{Message: "template has no end node"},
	})

	assert.Len(t, err.Violations, 2)
	assert.Contains(t, err.Error(), "node a: unreachable from start")
	assert.Contains(t, err.Error(), "2 violation(s)")
}

func TestInstanceStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   InstanceStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusApproved, true},
		{StatusRejected, true},
		{StatusCancelled, true},
		{StatusTimeout, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestApprovalInstance_CloneIsDeep(t *testing.T) {
	inst := &ApprovalInstance{
		ID:       "i1",
		FormData: map[string]any{"budget": 10, "tags": []any{"a"}},
		Round:    NodeRound{Original: []string{"u1"}},
		Nodes:    []ApprovalNode{{ID: "n", Type: NodeTypeApproval, Approval: &ApprovalSettings{Approvers: ApproverSpec{UserIDs: []string{"u1"}}}}},
	}
	inst.SyncApprovers()

	c := inst.Clone()
	c.FormData["budget"] = 20
	c.FormData["tags"].([]any)[0] = "b"
	c.Round.Original[0] = "u2"
	c.Nodes[0].Approval.Approvers.UserIDs[0] = "u3"
	c.CurrentApprovers[0] = "u4"

	assert.Equal(t, 10, inst.FormData["budget"])
	assert.Equal(t, "a", inst.FormData["tags"].([]any)[0])
	assert.Equal(t, "u1", inst.Round.Original[0])
	assert.Equal(t, "u1", inst.Nodes[0].Approval.Approvers.UserIDs[0])
	assert.Equal(t, []string{"u1"}, inst.CurrentApprovers)
}
