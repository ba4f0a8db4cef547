package workflow

import (
	"context"
	"time"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/application/resolver"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// WorkflowEngine owns every state change of an approval instance
type WorkflowEngine interface {
	// CreateInstance starts an instance from an active template. When the first node cannot be
	// staffed or routed, the held instance is returned together with the hold error.
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.ApprovalInstance, error)

	// ProcessAction applies an approver or applicant action. Refused actions are recorded
	// and leave the instance unchanged.
	ProcessAction(ctx context.Context, req ProcessActionRequest) (*entity.ApprovalInstance, error)

	// Cancel withdraws a pending instance on behalf of its applicant
	Cancel(ctx context.Context, instanceID, actor, reason string) (*entity.ApprovalInstance, error)

	GetInstance(ctx context.Context, instanceID string) (*entity.ApprovalInstance, error)
	ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.ApprovalInstance, int, error)
	Records(ctx context.Context, instanceID string) ([]*entity.ApprovalRecord, error)

	// Timeout moves an overdue instance to timeout. It reports false when the
	// instance no longer qualifies (acted on, held or not yet due).
	Timeout(ctx context.Context, instanceID string) (bool, error)

	// ReprocessTimeout reopens a timed out instance on its current node
	ReprocessTimeout(ctx context.Context, instanceID, operator, comment string) (*entity.ApprovalInstance, error)

	// RemediateHold releases a held instance by re-running routing or resolution,
	// by assigning approvers or by choosing the branch target explicitly
	RemediateHold(ctx context.Context, req RemediateRequest) (*entity.ApprovalInstance, error)

	// Replay rebuilds the instance from its accepted records and compares with the stored state
	Replay(ctx context.Context, instanceID string) (*ReplayResult, error)
}

// ApproverResolver resolves a node's approvers at entry time
type ApproverResolver interface {
	Resolve(ctx context.Context, node entity.NodeID, spec entity.ApproverSpec, ictx resolver.InstanceContext) ([]string, error)
}

// Logger interface for engine logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateInstanceRequest starts a new instance. Deadline, when set, replaces the first node's deadline.
type CreateInstanceRequest struct {
	TemplateID          string          `json:"template_id"`
	Title               string          `json:"title"`
	Applicant           string          `json:"applicant"`
	ApplicantDepartment string          `json:"applicant_department"`
	FormData            map[string]any  `json:"form_data"`
	Priority            entity.Priority `json:"priority"`
	Deadline            *time.Time      `json:"deadline"`
}

// ProcessActionRequest is one approver or applicant action
type ProcessActionRequest struct {
	InstanceID   string        `json:"instance_id"`
	Action       entity.Action `json:"action"`
	Actor        string        `json:"actor"`
	Comment      string        `json:"comment"`
	Attachments  []string      `json:"attachments"`
	TransferTo   string        `json:"transfer_to"`
	AddSignUsers []string      `json:"add_sign_users"`
}

// RemediateRequest releases a held instance. Approvers apply to unresolved holds,
// TargetNode to no-matching-condition holds.
type RemediateRequest struct {
	InstanceID string        `json:"instance_id"`
	Operator   string        `json:"operator"`
	Approvers  []string      `json:"approvers"`
	TargetNode entity.NodeID `json:"target_node"`
	Comment    string        `json:"comment"`
}

// ReplayResult compares the stored instance with the one rebuilt from records
type ReplayResult struct {
	Stored   *entity.ApprovalInstance `json:"stored"`
	Replayed *entity.ApprovalInstance `json:"replayed"`
	Matches  bool                     `json:"matches"`
}
