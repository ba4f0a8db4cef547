package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
	domainwf "github.com/garyjia/store-approval/internal/domain/workflow"
	"github.com/garyjia/store-approval/pkg/utils"
)

// command is one validated action. describe returns the record it writes,
// apply changes the mutation or refuses.
type command interface {
	describe() entity.ApprovalRecord
	apply(e *engineImpl, m *mutation) error
}

type approveCmd struct {
	actor       string
	comment     string
	attachments []string
}

type rejectCmd struct {
	actor       string
	comment     string
	attachments []string
}

type transferCmd struct {
	actor   string
	to      string
	comment string
}

type addSignCmd struct {
	actor   string
	users   []string
	comment string
}

type cancelCmd struct {
	actor  string
	reason string
}

type timeoutCmd struct{}

type reopenCmd struct {
	operator string
	comment  string
}

type remediateCmd struct {
	operator  string
	approvers []string
	target    entity.NodeID
	comment   string
}

// commandFromRequest validates an API request into a command
func commandFromRequest(req ProcessActionRequest) (command, error) {
	actor := strings.TrimSpace(req.Actor)
	if strings.TrimSpace(req.InstanceID) == "" {
		return nil, entity.NewValidationError("instance_id is required")
	}
	if actor == "" {
		return nil, entity.NewValidationError("actor is required")
	}

	comment := utils.SanitizeString(req.Comment)
	switch req.Action {
	case entity.ActionApprove:
		return approveCmd{actor: actor, comment: comment, attachments: req.Attachments}, nil
	case entity.ActionReject:
		return rejectCmd{actor: actor, comment: comment, attachments: req.Attachments}, nil
	case entity.ActionTransfer:
		return transferCmd{actor: actor, to: strings.TrimSpace(req.TransferTo), comment: comment}, nil
	case entity.ActionAddSign:
		return addSignCmd{actor: actor, users: distinctTrimmed(req.AddSignUsers), comment: comment}, nil
	case entity.ActionCancel:
		return cancelCmd{actor: actor, reason: comment}, nil
	case entity.ActionTimeout, entity.ActionReopen, entity.ActionRemediate:
		return nil, entity.NewValidationError("%s is not an approver action", req.Action)
	}
	return nil, entity.NewValidationError("unknown action %q", req.Action)
}

// commandFromRecord rebuilds the command an accepted record was written for
func commandFromRecord(rec *entity.ApprovalRecord) (command, error) {
	switch rec.Action {
	case entity.ActionApprove:
		return approveCmd{actor: rec.Approver, comment: rec.Comment, attachments: rec.Attachments}, nil
	case entity.ActionReject:
		return rejectCmd{actor: rec.Approver, comment: rec.Comment, attachments: rec.Attachments}, nil
	case entity.ActionTransfer:
		return transferCmd{actor: rec.Approver, to: rec.TransferTo, comment: rec.Comment}, nil
	case entity.ActionAddSign:
		return addSignCmd{actor: rec.Approver, users: rec.AddSignUsers, comment: rec.Comment}, nil
	case entity.ActionCancel:
		return cancelCmd{actor: rec.Approver, reason: rec.Comment}, nil
	case entity.ActionTimeout:
		return timeoutCmd{}, nil
	case entity.ActionReopen:
		return reopenCmd{operator: rec.Approver, comment: rec.Comment}, nil
	case entity.ActionRemediate:
		return remediateCmd{operator: rec.Approver, approvers: rec.AddSignUsers, target: rec.TargetNode, comment: rec.Comment}, nil
	}
	return nil, fmt.Errorf("record %s has unknown action %q", rec.ID, rec.Action)
}

// requireApprover refuses actors who may not vote on the current node and
// returns the node otherwise
func requireApprover(m *mutation, cmd command, actor string) (*entity.ApprovalNode, error) {
	inst := m.inst
	if inst.Hold != nil || !inst.IsApprover(actor) {
		return nil, m.refuse(cmd, entity.NewNotAuthorizedError(actor, fmt.Sprintf("not an approver of node %s", inst.CurrentNode)))
	}
	if inst.Round.HasApproved(actor) {
		return nil, m.refuse(cmd, entity.NewNotAuthorizedError(actor, fmt.Sprintf("already approved node %s", inst.CurrentNode)))
	}
	n, err := m.node(inst.CurrentNode)
	if err != nil {
		return nil, err
	}
	if n.Approval == nil {
		return nil, fmt.Errorf("approval node %s has no settings", n.ID)
	}
	return n, nil
}

func (c approveCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.actor, Action: entity.ActionApprove, Comment: c.comment, Attachments: c.attachments}
}

func (c approveCmd) apply(e *engineImpl, m *mutation) error {
	n, err := requireApprover(m, c, c.actor)
	if err != nil {
		return err
	}
	inst := m.inst
	inst.Round.Approvals = append(inst.Round.Approvals, c.actor)

	rec := c.describe()
	rec.Result = entity.ResultApproved
	m.record(rec)
	m.emit(event.TypeActionRecorded, map[string]any{event.KeyActor: c.actor, event.KeyAction: string(entity.ActionApprove)})

	if !satisfied(n.Approval.Policy, inst.Round) {
		return nil
	}
	inst.CompletedNodes++
	if inst.CompletedNodes > inst.TotalNodes {
		inst.TotalNodes = inst.CompletedNodes
	}
	return e.advance(m, inst.CurrentNode)
}

func (c rejectCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.actor, Action: entity.ActionReject, Comment: c.comment, Attachments: c.attachments}
}

func (c rejectCmd) apply(e *engineImpl, m *mutation) error {
	n, err := requireApprover(m, c, c.actor)
	if err != nil {
		return err
	}
	if !n.Approval.AllowReject {
		return m.refuse(c, entity.NewActionNotAllowedError(entity.ActionReject, n.ID))
	}

	rec := c.describe()
	rec.Result = entity.ResultRejected
	m.record(rec)
	if err := m.fire(domainwf.TriggerReject); err != nil {
		return err
	}
	e.finish(m)
	m.emit(event.TypeInstanceRejected, map[string]any{
		event.KeyActor:     c.actor,
		event.KeyApplicant: m.inst.Applicant,
		event.KeyTitle:     m.inst.Title,
		event.KeyReason:    c.comment,
	})
	return nil
}

func (c transferCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.actor, Action: entity.ActionTransfer, Comment: c.comment, TransferTo: c.to}
}

func (c transferCmd) apply(_ *engineImpl, m *mutation) error {
	if c.to == "" {
		return m.refuse(c, entity.NewValidationError("transfer_to is required"))
	}
	n, err := requireApprover(m, c, c.actor)
	if err != nil {
		return err
	}
	if !n.Approval.AllowTransfer {
		return m.refuse(c, entity.NewActionNotAllowedError(entity.ActionTransfer, n.ID))
	}
	if c.to == c.actor {
		return m.refuse(c, entity.NewValidationError("cannot transfer to yourself"))
	}
	if m.inst.IsApprover(c.to) {
		return m.refuse(c, entity.NewValidationError("%s is already an approver of node %s", c.to, n.ID))
	}

	round := &m.inst.Round
	if i := slices.Index(round.Original, c.actor); i >= 0 {
		round.Original[i] = c.to
	} else if i := slices.Index(round.AddSigners, c.actor); i >= 0 {
		round.AddSigners[i] = c.to
	}
	m.inst.SyncApprovers()

	m.record(c.describe())
	m.emit(event.TypeNodeEntered, map[string]any{
		event.KeyApprovers: []string{c.to},
		event.KeyActor:     c.actor,
		event.KeyAction:    string(entity.ActionTransfer),
		event.KeyNodeName:  n.Name,
		event.KeyTitle:     m.inst.Title,
		event.KeyApplicant: m.inst.Applicant,
	})
	return nil
}

func (c addSignCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.actor, Action: entity.ActionAddSign, Comment: c.comment, AddSignUsers: c.users}
}

func (c addSignCmd) apply(_ *engineImpl, m *mutation) error {
	if len(c.users) == 0 {
		return m.refuse(c, entity.NewValidationError("add_sign_users is required"))
	}
	n, err := requireApprover(m, c, c.actor)
	if err != nil {
		return err
	}
	if !n.Approval.AllowAddSign {
		return m.refuse(c, entity.NewActionNotAllowedError(entity.ActionAddSign, n.ID))
	}
	for _, u := range c.users {
		if m.inst.IsApprover(u) {
			return m.refuse(c, entity.NewValidationError("%s is already an approver of node %s", u, n.ID))
		}
	}

	m.inst.Round.AddSigners = append(m.inst.Round.AddSigners, c.users...)
	m.inst.SyncApprovers()

	m.record(c.describe())
	m.emit(event.TypeNodeEntered, map[string]any{
		event.KeyApprovers: slices.Clone(c.users),
		event.KeyActor:     c.actor,
		event.KeyAction:    string(entity.ActionAddSign),
		event.KeyNodeName:  n.Name,
		event.KeyTitle:     m.inst.Title,
		event.KeyApplicant: m.inst.Applicant,
	})
	return nil
}

func (c cancelCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.actor, Action: entity.ActionCancel, Comment: c.reason}
}

func (c cancelCmd) apply(e *engineImpl, m *mutation) error {
	if c.actor != m.inst.Applicant {
		return m.refuse(c, entity.NewNotAuthorizedError(c.actor, "only the applicant may cancel"))
	}
	approvers := slices.Clone(m.inst.CurrentApprovers)

	m.record(c.describe())
	if err := m.fire(domainwf.TriggerCancel); err != nil {
		return err
	}
	e.finish(m)
	m.emit(event.TypeInstanceCancelled, map[string]any{
		event.KeyActor:     c.actor,
		event.KeyApprovers: approvers,
		event.KeyTitle:     m.inst.Title,
		event.KeyReason:    c.reason,
	})
	return nil
}

func (timeoutCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: entity.SystemActor, Action: entity.ActionTimeout, Comment: "deadline passed"}
}

func (c timeoutCmd) apply(e *engineImpl, m *mutation) error {
	approvers := slices.Clone(m.inst.CurrentApprovers)
	m.record(c.describe())
	if err := m.fire(domainwf.TriggerTimeout); err != nil {
		return err
	}
	e.finish(m)
	m.emit(event.TypeInstanceTimeout, map[string]any{
		event.KeyApprovers: approvers,
		event.KeyApplicant: m.inst.Applicant,
		event.KeyTitle:     m.inst.Title,
	})
	return nil
}

func (c reopenCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{Approver: c.operator, Action: entity.ActionReopen, Comment: c.comment}
}

func (c reopenCmd) apply(e *engineImpl, m *mutation) error {
	inst := m.inst
	switch inst.Status {
	case entity.StatusTimeout:
	case entity.StatusPending:
		return m.refuse(c, entity.NewValidationError("instance %s has not timed out", inst.ID))
	default:
		return m.refuse(c, entity.NewAlreadyTerminalError(inst.ID, inst.Status))
	}

	m.record(c.describe())
	if err := m.fire(domainwf.TriggerReopen); err != nil {
		return err
	}
	inst.ActualDuration = nil
	m.emit(event.TypeInstanceReopened, map[string]any{event.KeyActor: c.operator})
	return e.enterNode(m, inst.CurrentNode)
}

func (c remediateCmd) describe() entity.ApprovalRecord {
	return entity.ApprovalRecord{
		Approver:     c.operator,
		Action:       entity.ActionRemediate,
		Comment:      c.comment,
		AddSignUsers: c.approvers,
		TargetNode:   c.target,
	}
}

func (c remediateCmd) apply(e *engineImpl, m *mutation) error {
	inst := m.inst
	if inst.Status.IsTerminal() {
		return m.refuse(c, entity.NewAlreadyTerminalError(inst.ID, inst.Status))
	}
	if inst.Hold == nil {
		return m.refuse(c, entity.NewValidationError("instance %s is not held", inst.ID))
	}

	switch inst.Hold.Reason {
	case entity.HoldNoMatchingCondition:
		n, err := m.node(inst.Hold.NodeID)
		if err != nil {
			return err
		}
		if c.target == "" {
			return m.refuse(c, entity.NewValidationError("target_node is required to leave condition node %s", n.ID))
		}
		if !slices.ContainsFunc(n.Branches, func(b entity.ConditionBranch) bool { return b.Target == c.target }) {
			return m.refuse(c, entity.NewValidationError("%s is not a branch target of node %s", c.target, n.ID))
		}
		m.record(c.describe())
		inst.Hold = nil
		if err := e.land(m, c.target); err != nil {
			return err
		}

	case entity.HoldUnresolvedApprover:
		n, err := m.node(inst.Hold.NodeID)
		if err != nil {
			return err
		}
		m.record(c.describe())
		if len(c.approvers) > 0 {
			e.seat(m, n, c.approvers)
		} else if err := e.enterNode(m, n.ID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("instance %s has unknown hold reason %q", inst.ID, inst.Hold.Reason)
	}

	recountTotal(m)
	m.emit(event.TypeActionRecorded, map[string]any{event.KeyActor: c.operator, event.KeyAction: string(entity.ActionRemediate)})
	return nil
}

func distinctTrimmed(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
