package entity

// BusinessType classifies the store-lifecycle process a template serves
type BusinessType string

const (
	BusinessTypeStoreApplication BusinessType = "store_application"
	BusinessTypeSiteSelection    BusinessType = "site_selection"
	BusinessTypeConstruction     BusinessType = "construction"
	BusinessTypeContract         BusinessType = "contract"
	BusinessTypeBudget           BusinessType = "budget"
	BusinessTypePersonnel        BusinessType = "personnel"
	BusinessTypeOther            BusinessType = "other"
)

// IsValid reports whether b is a known business type
func (b BusinessType) IsValid() bool {
	switch b {
	case BusinessTypeStoreApplication, BusinessTypeSiteSelection, BusinessTypeConstruction,
		BusinessTypeContract, BusinessTypeBudget, BusinessTypePersonnel, BusinessTypeOther:
		return true
	}
	return false
}

// NodeType is the role a node plays in the template graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeApproval  NodeType = "approval"
	NodeTypeCondition NodeType = "condition"
	NodeTypeEnd       NodeType = "end"
)

// ApprovalPolicy decides when an approval node is satisfied
type ApprovalPolicy string

const (
	PolicySingle   ApprovalPolicy = "single"
	PolicyAll      ApprovalPolicy = "all"
	PolicyMajority ApprovalPolicy = "majority"
)

func (p ApprovalPolicy) IsValid() bool {
	return p == PolicySingle || p == PolicyAll || p == PolicyMajority
}

// ApproverKind selects how a node's approvers are resolved
type ApproverKind string

const (
	ApproverFixed             ApproverKind = "fixed"
	ApproverRole              ApproverKind = "role"
	ApproverDepartmentManager ApproverKind = "department_manager"
	ApproverInitiatorManager  ApproverKind = "initiator_manager"
)

// Operator compares a form field against a condition value
type Operator string

const (
	OpEq       Operator = "eq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains:
		return true
	}
	return false
}

// IsOrdering reports whether o needs an ordered operand (numbers or dates)
func (o Operator) IsOrdering() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Logic joins a condition to the one after it
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// FieldType is the declared type of a form field
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

func (f FieldType) IsValid() bool {
	switch f {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldArray, FieldObject:
		return true
	}
	return false
}

// InstanceStatus is the lifecycle status of an approval instance
type InstanceStatus string

const (
	StatusPending   InstanceStatus = "pending"
	StatusApproved  InstanceStatus = "approved"
	StatusRejected  InstanceStatus = "rejected"
	StatusCancelled InstanceStatus = "cancelled"
	StatusTimeout   InstanceStatus = "timeout"
)

// AllStatuses lists statuses in reporting order
var AllStatuses = []InstanceStatus{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusTimeout}

// IsTerminal reports whether no approver action is accepted in this status.
// Timed out instances can still be reopened by an operator.
func (s InstanceStatus) IsTerminal() bool {
	return s != StatusPending
}

func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Priority of an instance
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Action recorded against an instance
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionTransfer Action = "transfer"
	ActionAddSign  Action = "add_sign"
	ActionCancel   Action = "cancel"

	// System actions, never accepted through ProcessAction
	ActionTimeout   Action = "timeout"
	ActionReopen    Action = "reopen"
	ActionRemediate Action = "remediate"
)

// IsSystem reports whether the action is issued by the engine or an operator
func (a Action) IsSystem() bool {
	return a == ActionTimeout || a == ActionReopen || a == ActionRemediate
}

// RecordResult is the outcome a record carries
type RecordResult string

const (
	ResultApproved RecordResult = "approved"
	ResultRejected RecordResult = "rejected"
	ResultPending  RecordResult = "pending"
)

// HoldReason explains why an instance cannot progress without operator help
type HoldReason string

const (
	HoldUnresolvedApprover  HoldReason = "unresolved_approver"
	HoldNoMatchingCondition HoldReason = "no_matching_condition"
)

// SystemActor is the approver id written on records the engine creates itself
const SystemActor = "system"
