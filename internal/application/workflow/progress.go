package workflow

import (
	"errors"
	"fmt"

	"github.com/garyjia/store-approval/internal/application/resolver"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
	"github.com/garyjia/store-approval/internal/domain/graph"
	domainwf "github.com/garyjia/store-approval/internal/domain/workflow"
)

// start places a fresh instance on the start node and routes it to its first wait
func (e *engineImpl) start(m *mutation) error {
	startID := m.graph.Start()
	m.inst.CurrentNode = startID
	m.inst.ExecutionPath = []entity.NodeID{startID}
	return e.advance(m, startID)
}

// advance leaves from and walks through condition nodes to the next approval or end node
func (e *engineImpl) advance(m *mutation, from entity.NodeID) error {
	visited, err := graph.Advance(m.graph, from, m.inst.FormData)
	m.inst.ExecutionPath = append(m.inst.ExecutionPath, visited...)
	if err != nil {
		if errors.Is(err, entity.ErrNoMatchingCondition) {
			at := from
			if len(visited) > 0 {
				at = visited[len(visited)-1]
			}
			e.hold(m, entity.HoldNoMatchingCondition, at, err)
			return nil
		}
		return fmt.Errorf("failed to route instance %s from %s: %w", m.inst.ID, from, err)
	}
	if len(visited) == 0 {
		return fmt.Errorf("node %s of instance %s has no successor", from, m.inst.ID)
	}
	return e.enterNode(m, visited[len(visited)-1])
}

// land continues from a node chosen by an operator, already known to be a valid target
func (e *engineImpl) land(m *mutation, id entity.NodeID) error {
	n, err := m.node(id)
	if err != nil {
		return err
	}
	m.inst.ExecutionPath = append(m.inst.ExecutionPath, id)
	if n.Type == entity.NodeTypeCondition {
		m.inst.CurrentNode = id
		return e.advance(m, id)
	}
	return e.enterNode(m, id)
}

// enterNode makes id the current node: end nodes complete the instance,
// approval nodes resolve their approvers and open a new round
func (e *engineImpl) enterNode(m *mutation, id entity.NodeID) error {
	n, err := m.node(id)
	if err != nil {
		return err
	}
	m.inst.CurrentNode = id

	switch n.Type {
	case entity.NodeTypeEnd:
		return e.complete(m)
	case entity.NodeTypeApproval:
		approvers, err := e.resolver.Resolve(m.ctx, id, n.Approval.Approvers, resolver.InstanceContext{
			InstanceID:          m.inst.ID,
			Applicant:           m.inst.Applicant,
			ApplicantDepartment: m.inst.ApplicantDepartment,
		})
		if err != nil {
			if errors.Is(err, entity.ErrUnresolvedApprover) {
				e.hold(m, entity.HoldUnresolvedApprover, id, err)
				return nil
			}
			return err
		}
		e.seat(m, n, approvers)
		return nil
	}
	return fmt.Errorf("instance %s cannot wait on %s node %s", m.inst.ID, n.Type, id)
}

// seat opens a round on an approval node with the given approvers
func (e *engineImpl) seat(m *mutation, n *entity.ApprovalNode, approvers []string) {
	inst := m.inst
	inst.Hold = nil
	inst.Round = entity.NodeRound{
		NodeID:    n.ID,
		EnteredAt: m.now,
		Original:  append([]string(nil), approvers...),
	}
	inst.SyncApprovers()

	inst.Deadline = nil
	if limit := n.Approval.TimeLimit(); limit > 0 {
		d := m.now.Add(limit)
		inst.Deadline = &d
	}

	if n.Approval.Policy == entity.PolicyMajority && len(approvers) < 3 {
		e.logger.Info("Majority node resolved to fewer than three approvers",
			"instance_id", inst.ID,
			"node_id", n.ID,
			"approvers", len(approvers),
		)
	}

	payload := map[string]any{
		event.KeyApprovers: inst.Round.Approvers(),
		event.KeyNodeName:  n.Name,
		event.KeyTitle:     inst.Title,
		event.KeyApplicant: inst.Applicant,
	}
	if inst.Deadline != nil {
		payload[event.KeyDeadline] = *inst.Deadline
	}
	m.emit(event.TypeNodeEntered, payload)
}

func (e *engineImpl) complete(m *mutation) error {
	if err := m.fire(domainwf.TriggerComplete); err != nil {
		return err
	}
	e.finish(m)
	m.emit(event.TypeInstanceApproved, map[string]any{
		event.KeyApplicant: m.inst.Applicant,
		event.KeyTitle:     m.inst.Title,
	})
	return nil
}

// finish clears everything a terminal instance must not carry
func (e *engineImpl) finish(m *mutation) {
	m.inst.ClearRound()
	m.inst.Hold = nil
	d := m.now.Sub(m.inst.CreateTime)
	m.inst.ActualDuration = &d
}

// hold parks the instance on node until an operator remediates it
func (e *engineImpl) hold(m *mutation, reason entity.HoldReason, node entity.NodeID, cause error) {
	inst := m.inst
	inst.CurrentNode = node
	inst.ClearRound()
	inst.Round.NodeID = node
	inst.Round.EnteredAt = m.now
	inst.Deadline = nil
	inst.Hold = &entity.Hold{
		Reason:  reason,
		NodeID:  node,
		Message: cause.Error(),
		Since:   m.now,
	}
	m.holdErr = cause

	e.logger.Error("Instance held", "instance_id", inst.ID, "node_id", node, "reason", reason, "error", cause)
	m.emit(event.TypeInstanceHeld, map[string]any{
		event.KeyReason:    string(reason),
		event.KeyApplicant: inst.Applicant,
		event.KeyTitle:     inst.Title,
	})
}

// satisfied applies the node policy to the round's votes. Add-signers must
// always approve; the policy counts only the originally resolved approvers.
func satisfied(policy entity.ApprovalPolicy, r entity.NodeRound) bool {
	for _, u := range r.AddSigners {
		if !r.HasApproved(u) {
			return false
		}
	}
	approved := 0
	for _, u := range r.Original {
		if r.HasApproved(u) {
			approved++
		}
	}
	switch policy {
	case entity.PolicyAll:
		return approved == len(r.Original)
	case entity.PolicyMajority:
		return approved*2 > len(r.Original)
	default:
		return approved >= 1
	}
}

// recountTotal keeps the progress estimate consistent after routing changed course
func recountTotal(m *mutation) {
	remaining := 0
	if cur, ok := m.graph.Node(m.inst.CurrentNode); ok && cur.Type == entity.NodeTypeApproval {
		remaining = 1
		visited, _ := graph.Advance(m.graph, cur.ID, m.inst.FormData)
		for len(visited) > 0 {
			last := visited[len(visited)-1]
			n, _ := m.graph.Node(last)
			if n.Type != entity.NodeTypeApproval {
				break
			}
			remaining++
			if remaining > m.graph.Len() {
				break
			}
			visited, _ = graph.Advance(m.graph, last, m.inst.FormData)
		}
	}
	m.inst.TotalNodes = m.inst.CompletedNodes + remaining
}
