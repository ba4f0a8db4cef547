package entity

import (
	"slices"
	"time"
)

// ApprovalInstance is one running execution of a template
type ApprovalInstance struct {
	ID                  string         `json:"id"`
	InstanceCode        string         `json:"instance_code"`
	TemplateID          string         `json:"template_id"`
	TemplateName        string         `json:"template_name"`
	TemplateVersion     int            `json:"template_version"`
	Nodes               []ApprovalNode `json:"-"`
	Title               string         `json:"title"`
	Category            string         `json:"category"`
	BusinessType        BusinessType   `json:"business_type"`
	Applicant           string         `json:"applicant"`
	ApplicantDepartment string         `json:"applicant_department,omitempty"`
	FormData            map[string]any `json:"form_data"`
	Status              InstanceStatus `json:"status"`
	Priority            Priority       `json:"priority"`
	CurrentNode         NodeID         `json:"current_node"`
	CurrentApprovers    []string       `json:"current_approvers"`
	Round               NodeRound      `json:"round"`
	ExecutionPath       []NodeID       `json:"execution_path"`
	TotalNodes          int            `json:"total_nodes"`
	CompletedNodes      int            `json:"completed_nodes"`
	CreateTime          time.Time      `json:"create_time"`
	UpdateTime          time.Time      `json:"update_time"`
	Deadline            *time.Time     `json:"deadline,omitempty"`
	ActualDuration      *time.Duration `json:"actual_duration,omitempty"`
	Hold                *Hold          `json:"hold,omitempty"`
	Version             int64          `json:"version"`
}

// NodeRound tracks the votes on the node an instance currently waits on
type NodeRound struct {
	NodeID     NodeID    `json:"node_id"`
	EnteredAt  time.Time `json:"entered_at"`
	Original   []string  `json:"original"`
	AddSigners []string  `json:"add_signers,omitempty"`
	Approvals  []string  `json:"approvals,omitempty"`
}

// Approvers is every actor who may still act on the node, originals first
func (r NodeRound) Approvers() []string {
	out := make([]string, 0, len(r.Original)+len(r.AddSigners))
	out = append(out, r.Original...)
	return append(out, r.AddSigners...)
}

// HasApproved reports whether actor already approved in this round
func (r NodeRound) HasApproved(actor string) bool {
	return slices.Contains(r.Approvals, actor)
}

// Hold marks an instance that is stuck until an operator remediates it
type Hold struct {
	Reason  HoldReason `json:"reason"`
	NodeID  NodeID     `json:"node_id"`
	Message string     `json:"message"`
	Since   time.Time  `json:"since"`
}

// IsApprover reports whether actor is one of the current approvers
func (i *ApprovalInstance) IsApprover(actor string) bool {
	return slices.Contains(i.CurrentApprovers, actor)
}

// SyncApprovers recomputes CurrentApprovers from the round
func (i *ApprovalInstance) SyncApprovers() {
	i.CurrentApprovers = i.Round.Approvers()
}

// ClearRound drops the round and current approvers
func (i *ApprovalInstance) ClearRound() {
	i.Round = NodeRound{}
	i.CurrentApprovers = []string{}
}

// Node returns the snapshot node with the given id
func (i *ApprovalInstance) Node(id NodeID) (*ApprovalNode, bool) {
	for k := range i.Nodes {
		if i.Nodes[k].ID == id {
			return &i.Nodes[k], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers never share state with the store
func (i *ApprovalInstance) Clone() *ApprovalInstance {
	if i == nil {
		return nil
	}
	c := *i
	c.Nodes = CloneNodes(i.Nodes)
	c.FormData = cloneMap(i.FormData)
	c.CurrentApprovers = slices.Clone(i.CurrentApprovers)
	c.Round.Original = slices.Clone(i.Round.Original)
	c.Round.AddSigners = slices.Clone(i.Round.AddSigners)
	c.Round.Approvals = slices.Clone(i.Round.Approvals)
	c.ExecutionPath = slices.Clone(i.ExecutionPath)
	if i.Deadline != nil {
		d := *i.Deadline
		c.Deadline = &d
	}
	if i.ActualDuration != nil {
		d := *i.ActualDuration
		c.ActualDuration = &d
	}
	if i.Hold != nil {
		h := *i.Hold
		c.Hold = &h
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// CloneData deep-copies decoded JSON form data
func CloneData(m map[string]any) map[string]any {
	return cloneMap(m)
}
