package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/graph"
)

func (e *engineImpl) Timeout(ctx context.Context, instanceID string) (bool, error) {
	fired := false
	_, err := e.mutate(ctx, instanceID, func(m *mutation) error {
		inst := m.inst
		if inst.Status != entity.StatusPending || inst.Hold != nil || inst.Deadline == nil {
			return errNoChange
		}
		// An instance somebody already voted on is in progress, not stalled
		if m.now.Before(*inst.Deadline) || len(inst.Round.Approvals) > 0 {
			return errNoChange
		}
		fired = true
		return timeoutCmd{}.apply(e, m)
	})
	if err != nil {
		return false, err
	}
	if fired {
		e.logger.Info("Instance timed out", "instance_id", instanceID)
	}
	return fired, nil
}

func (e *engineImpl) ReprocessTimeout(ctx context.Context, instanceID, operator, comment string) (*entity.ApprovalInstance, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, entity.NewValidationError("operator is required")
	}
	return e.mutate(ctx, instanceID, func(m *mutation) error {
		return reopenCmd{operator: operator, comment: comment}.apply(e, m)
	})
}

func (e *engineImpl) RemediateHold(ctx context.Context, req RemediateRequest) (*entity.ApprovalInstance, error) {
	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		return nil, entity.NewValidationError("operator is required")
	}
	cmd := remediateCmd{
		operator:  operator,
		approvers: distinctTrimmed(req.Approvers),
		target:    req.TargetNode,
		comment:   req.Comment,
	}
	return e.mutate(ctx, req.InstanceID, func(m *mutation) error {
		return cmd.apply(e, m)
	})
}

func (e *engineImpl) Replay(ctx context.Context, instanceID string) (*ReplayResult, error) {
	stored, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	recs, err := e.records.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", instanceID, err)
	}

	replayed, err := e.replay(ctx, stored, recs)
	if err != nil {
		return nil, err
	}
	return &ReplayResult{
		Stored:   stored,
		Replayed: replayed,
		Matches:  replayed.Status == stored.Status && replayed.CurrentNode == stored.CurrentNode,
	}, nil
}

// replay rebuilds base from its snapshot and form data by applying the accepted
// records in order. Approvers are resolved again, so a changed directory can make
// a record fail to apply.
func (e *engineImpl) replay(ctx context.Context, base *entity.ApprovalInstance, recs []*entity.ApprovalRecord) (*entity.ApprovalInstance, error) {
	g, err := graph.Compile(base.Nodes)
	if err != nil {
		return nil, fmt.Errorf("instance %s snapshot does not compile: %w", base.ID, err)
	}

	inst := base.Clone()
	inst.Status = entity.StatusPending
	inst.ClearRound()
	inst.Hold = nil
	inst.Deadline = nil
	inst.ActualDuration = nil
	inst.CompletedNodes = 0

	m := newMutation(ctx, inst, g, base.CreateTime)
	if err := e.start(m); err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if !rec.Accepted() {
			continue
		}
		cmd, err := commandFromRecord(rec)
		if err != nil {
			return nil, err
		}
		m.now = rec.CreateTime
		if rec.Action.IsSystem() {
			err = cmd.apply(e, m)
		} else {
			err = e.applyActorCommand(m, cmd)
		}
		if err != nil {
			return nil, fmt.Errorf("record %s (%s by %s) does not replay: %w", rec.ID, rec.Action, rec.Approver, err)
		}
	}
	return m.inst, nil
}
