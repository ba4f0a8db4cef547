package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the stable machine-readable kind of a domain error
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeInvalidTemplate     ErrorCode = "INVALID_TEMPLATE"
	CodeTemplateInUse       ErrorCode = "TEMPLATE_IN_USE"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeAlreadyTerminal     ErrorCode = "ALREADY_TERMINAL"
	CodeNotAuthorized       ErrorCode = "NOT_AUTHORIZED"
	CodeActionNotAllowed    ErrorCode = "ACTION_NOT_ALLOWED"
	CodeUnresolvedApprover  ErrorCode = "UNRESOLVED_APPROVER"
	CodeNoMatchingCondition ErrorCode = "NO_MATCHING_CONDITION"
)

// Sentinels for errors.Is; any *Error with the same code matches
var (
	ErrValidation          = &Error{code: CodeValidation}
	ErrInvalidTemplate     = &Error{code: CodeInvalidTemplate}
	ErrTemplateInUse       = &Error{code: CodeTemplateInUse}
	ErrNotFound            = &Error{code: CodeNotFound}
	ErrAlreadyTerminal     = &Error{code: CodeAlreadyTerminal}
	ErrNotAuthorized       = &Error{code: CodeNotAuthorized}
	ErrActionNotAllowed    = &Error{code: CodeActionNotAllowed}
	ErrUnresolvedApprover  = &Error{code: CodeUnresolvedApprover}
	ErrNoMatchingCondition = &Error{code: CodeNoMatchingCondition}
)

// Violation is one problem found while validating a template or request
type Violation struct {
	NodeID  NodeID `json:"node_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	var b strings.Builder
	if v.NodeID != "" {
		fmt.Fprintf(&b, "node %s: ", v.NodeID)
	}
	if v.Field != "" {
		fmt.Fprintf(&b, "%s: ", v.Field)
	}
	b.WriteString(v.Message)
	return b.String()
}

// Error is the domain error type
type Error struct {
	code       ErrorCode
	Message    string
	Violations []Violation
	NodeID     NodeID
	cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.code), "_", " "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, msg)
}

// Code returns the stable error code
func (e *Error) Code() ErrorCode {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the sentinel of the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.cause == nil && t.code == e.code
}

// CodeOf extracts the domain error code from err, empty when err is not a domain error
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return ""
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidTemplateError lists every violation found during activation
func NewInvalidTemplateError(violations []Violation) *Error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return &Error{
		code:       CodeInvalidTemplate,
		Message:    fmt.Sprintf("template has %d violation(s): %s", len(violations), strings.Join(parts, "; ")),
		Violations: violations,
	}
}

func NewTemplateInUseError(templateID string, instances int) *Error {
	return &Error{code: CodeTemplateInUse, Message: fmt.Sprintf("template %s is referenced by %d instance(s)", templateID, instances)}
}

func NewNotFoundError(kind, id string) *Error {
	return &Error{code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

func NewAlreadyTerminalError(instanceID string, status InstanceStatus) *Error {
	return &Error{code: CodeAlreadyTerminal, Message: fmt.Sprintf("instance %s is already %s", instanceID, status)}
}

func NewNotAuthorizedError(actor, reason string) *Error {
	return &Error{code: CodeNotAuthorized, Message: fmt.Sprintf("actor %s is not authorized: %s", actor, reason)}
}

func NewActionNotAllowedError(action Action, node NodeID) *Error {
	return &Error{code: CodeActionNotAllowed, NodeID: node, Message: fmt.Sprintf("action %s is not allowed on node %s", action, node)}
}

func NewUnresolvedApproverError(node NodeID, cause error) *Error {
	return &Error{code: CodeUnresolvedApprover, NodeID: node, Message: fmt.Sprintf("no approvers resolved for node %s", node), cause: cause}
}

func NewNoMatchingConditionError(node NodeID) *Error {
	return &Error{code: CodeNoMatchingCondition, NodeID: node, Message: fmt.Sprintf("no branch of condition node %s matches the form data", node)}
}
