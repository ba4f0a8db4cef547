package entity

import "time"

// NodeID identifies a node inside one template graph
type NodeID string

// ApprovalTemplate is a reusable workflow definition
type ApprovalTemplate struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Category     string         `json:"category"`
	BusinessType BusinessType   `json:"business_type"`
	IsActive     bool           `json:"is_active"`
	Version      int            `json:"version"`
	Nodes        []ApprovalNode `json:"nodes"`
	FormSchema   FormSchema     `json:"form_schema"`
	Creator      string         `json:"creator"`
	CreateTime   time.Time      `json:"create_time"`
	UpdateTime   time.Time      `json:"update_time"`
}

// ApprovalNode is one vertex of the template graph.
// Approval settings are set only on approval nodes and branches only on condition nodes.
type ApprovalNode struct {
	ID          NodeID            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Type        NodeType          `json:"type" yaml:"type"`
	Connections []NodeID          `json:"connections,omitempty" yaml:"connections,omitempty"`
	Approval    *ApprovalSettings `json:"approval,omitempty" yaml:"approval,omitempty"`
	Branches    []ConditionBranch `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// ApprovalSettings configures who approves a node and what they may do
type ApprovalSettings struct {
	Approvers      ApproverSpec   `json:"approvers" yaml:"approvers"`
	Policy         ApprovalPolicy `json:"policy" yaml:"policy"`
	TimeLimitHours int            `json:"time_limit_hours,omitempty" yaml:"time_limit_hours,omitempty"`
	AllowReject    bool           `json:"allow_reject" yaml:"allow_reject"`
	AllowTransfer  bool           `json:"allow_transfer" yaml:"allow_transfer"`
	AllowAddSign   bool           `json:"allow_add_sign" yaml:"allow_add_sign"`
}

// TimeLimit returns the node time limit, zero when the node has none
func (s *ApprovalSettings) TimeLimit() time.Duration {
	if s == nil || s.TimeLimitHours <= 0 {
		return 0
	}
	return time.Duration(s.TimeLimitHours) * time.Hour
}

// ApproverSpec is the stored form of an approver source.
// Kind decides which of the other fields is read.
type ApproverSpec struct {
	Kind         ApproverKind `json:"kind" yaml:"kind"`
	UserIDs      []string     `json:"user_ids,omitempty" yaml:"user_ids,omitempty"`
	RoleID       string       `json:"role_id,omitempty" yaml:"role_id,omitempty"`
	DepartmentID string       `json:"department_id,omitempty" yaml:"department_id,omitempty"`
}

// ConditionBranch is an outgoing edge of a condition node.
// A branch without conditions is the default edge.
type ConditionBranch struct {
	Name       string              `json:"name,omitempty" yaml:"name,omitempty"`
	Target     NodeID              `json:"target" yaml:"target"`
	Conditions []ApprovalCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// IsDefault reports whether the branch always matches
func (b ConditionBranch) IsDefault() bool {
	return len(b.Conditions) == 0
}

// ApprovalCondition compares one form field against a value
type ApprovalCondition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
	Logic    Logic    `json:"logic,omitempty" yaml:"logic,omitempty"`
}

// FormSchema declares the fields an instance's form data may carry
type FormSchema struct {
	Fields []FormField `json:"fields" yaml:"fields"`
}

// Field returns the top-level field with the given name
func (s FormSchema) Field(name string) (FormField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FormField{}, false
}

// FormField is one declared form field. Validation holds validator tags, e.g. "min=1,max=5".
type FormField struct {
	Name        string          `json:"name" yaml:"name"`
	Label       string          `json:"label,omitempty" yaml:"label,omitempty"`
	Type        FieldType       `json:"type" yaml:"type"`
	Required    bool            `json:"required" yaml:"required"`
	Validation  string          `json:"validation,omitempty" yaml:"validation,omitempty"`
	VisibleWhen *VisibilityRule `json:"visible_when,omitempty" yaml:"visible_when,omitempty"`
}

// VisibilityRule shows a field only when another field equals a value
type VisibilityRule struct {
	Field  string `json:"field" yaml:"field"`
	Equals any    `json:"equals" yaml:"equals"`
}

// Node returns the node with the given id
func (t *ApprovalTemplate) Node(id NodeID) (*ApprovalNode, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the template
func (t *ApprovalTemplate) Clone() *ApprovalTemplate {
	if t == nil {
		return nil
	}
	c := *t
	c.Nodes = CloneNodes(t.Nodes)
	c.FormSchema.Fields = append([]FormField(nil), t.FormSchema.Fields...)
	for i := range c.FormSchema.Fields {
		if rule := c.FormSchema.Fields[i].VisibleWhen; rule != nil {
			r := *rule
			c.FormSchema.Fields[i].VisibleWhen = &r
		}
	}
	return &c
}

// CloneNodes deep-copies a node list
func CloneNodes(nodes []ApprovalNode) []ApprovalNode {
	if nodes == nil {
		return nil
	}
	out := make([]ApprovalNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
		out[i].Connections = append([]NodeID(nil), n.Connections...)
		if n.Approval != nil {
			a := *n.Approval
			a.Approvers.UserIDs = append([]string(nil), n.Approval.Approvers.UserIDs...)
			out[i].Approval = &a
		}
		if n.Branches != nil {
			out[i].Branches = make([]ConditionBranch, len(n.Branches))
			for j, b := range n.Branches {
				out[i].Branches[j] = b
				out[i].Branches[j].Conditions = append([]ApprovalCondition(nil), b.Conditions...)
			}
		}
	}
	return out
}
