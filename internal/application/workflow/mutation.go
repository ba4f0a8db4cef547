package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
	"github.com/garyjia/store-approval/internal/domain/graph"
	domainwf "github.com/garyjia/store-approval/internal/domain/workflow"
)

// mutation collects one state change: the working copy, the records to append
// and the events to publish once it is stored
type mutation struct {
	ctx         context.Context
	inst        *entity.ApprovalInstance
	graph       *graph.Graph
	now         time.Time
	correlation string

	records []*entity.ApprovalRecord
	events  []*event.Event

	// holdErr is returned to the caller after a successful write that left the instance held
	holdErr error
}

func newMutation(ctx context.Context, inst *entity.ApprovalInstance, g *graph.Graph, now time.Time) *mutation {
	return &mutation{
		ctx:         ctx,
		inst:        inst,
		graph:       g,
		now:         now,
		correlation: uuid.NewString(),
	}
}

// record appends an audit entry stamped with the current node and round
func (m *mutation) record(rec entity.ApprovalRecord) *entity.ApprovalRecord {
	rec.ID = uuid.NewString()
	rec.InstanceID = m.inst.ID
	if rec.NodeID == "" {
		rec.NodeID = m.inst.CurrentNode
	}
	if rec.Result == "" {
		rec.Result = entity.ResultPending
	}
	rec.NodeEnteredAt = m.inst.Round.EnteredAt
	rec.CreateTime = m.now
	m.records = append(m.records, &rec)
	return &rec
}

// emit queues an event; status and node id default to the working copy
func (m *mutation) emit(t event.Type, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload[event.KeyStatus]; !ok {
		payload[event.KeyStatus] = string(m.inst.Status)
	}
	if _, ok := payload[event.KeyNodeID]; !ok {
		payload[event.KeyNodeID] = string(m.inst.CurrentNode)
	}
	m.events = append(m.events, event.NewEventWithCorrelation(t, m.inst.ID, m.inst.InstanceCode, payload, m.now, m.correlation))
}

// fire moves the status through the instance state machine
func (m *mutation) fire(trigger domainwf.Trigger) error {
	sm := BuildInstanceStateMachine(domainwf.FromStatus(m.inst.Status))
	if err := sm.Fire(m.ctx, trigger); err != nil {
		return fmt.Errorf("instance %s: %w", m.inst.ID, err)
	}
	m.inst.Status = sm.State().Status()
	return nil
}

// refuse records a refused command and returns its error
func (m *mutation) refuse(cmd command, err *entity.Error) error {
	rec := cmd.describe()
	rec.Refusal = err.Code()
	rec.Result = entity.ResultPending
	m.record(rec)
	m.emit(event.TypeActionRefused, map[string]any{
		event.KeyActor:  rec.Approver,
		event.KeyAction: string(rec.Action),
		event.KeyCode:   string(err.Code()),
		event.KeyReason: err.Error(),
	})
	return err
}

// node returns the snapshot node or an error for a corrupt instance
func (m *mutation) node(id entity.NodeID) (*entity.ApprovalNode, error) {
	n, ok := m.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("instance %s references unknown node %q", m.inst.ID, id)
	}
	return n, nil
}
