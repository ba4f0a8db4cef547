package entity

import "time"

// ApprovalRecord is the append-only audit entry for one action.
// Refusal carries the error code when the action was refused; such records change nothing.
type ApprovalRecord struct {
	ID            string       `json:"id"`
	InstanceID    string       `json:"instance_id"`
	NodeID        NodeID       `json:"node_id"`
	Approver      string       `json:"approver"`
	Action        Action       `json:"action"`
	Result        RecordResult `json:"result"`
	Comment       string       `json:"comment,omitempty"`
	Attachments   []string     `json:"attachments,omitempty"`
	TransferTo    string       `json:"transfer_to,omitempty"`
	AddSignUsers  []string     `json:"add_sign_users,omitempty"`
	TargetNode    NodeID       `json:"target_node,omitempty"`
	NodeEnteredAt time.Time    `json:"node_entered_at"`
	CreateTime    time.Time    `json:"create_time"`
	Refusal       ErrorCode    `json:"refusal,omitempty"`
}

// Accepted reports whether the action took effect
func (r *ApprovalRecord) Accepted() bool {
	return r.Refusal == ""
}

// IsDecision reports whether the record is an accepted approve or reject vote
func (r *ApprovalRecord) IsDecision() bool {
	return r.Accepted() && (r.Action == ActionApprove || r.Action == ActionReject)
}

// Clone returns a copy that shares no slices with r
func (r *ApprovalRecord) Clone() *ApprovalRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Attachments = append([]string(nil), r.Attachments...)
	c.AddSignUsers = append([]string(nil), r.AddSignUsers...)
	return &c
}
