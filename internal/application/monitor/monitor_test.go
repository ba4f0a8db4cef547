package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/infrastructure/persistence/memory"
)

type mockLogger struct{}

func (mockLogger) Info(string, ...interface{})  {}
func (mockLogger) Error(string, ...interface{}) {}

type mockEngine struct {
	getFunc     func(ctx context.Context, id string) (*entity.ApprovalInstance, error)
	timeoutFunc func(ctx context.Context, id string) (bool, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockEngine) GetInstance(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	return m.getFunc(ctx, id)
}

func (m *mockEngine) Timeout(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, id)
	m.mu.Unlock()
	return m.timeoutFunc(ctx, id)
}

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		inst     entity.ApprovalInstance
		urgent   bool
		overdue  bool
		deadline bool
	}{
		{"no deadline", entity.ApprovalInstance{Status: entity.StatusPending}, false, false, false},
		{"far from deadline", entity.ApprovalInstance{Status: entity.StatusPending, Deadline: at(48 * time.Hour)}, false, false, true},
		{"inside warning window", entity.ApprovalInstance{Status: entity.StatusPending, Deadline: at(12 * time.Hour)}, true, false, true},
		{"exactly at deadline", entity.ApprovalInstance{Status: entity.StatusPending, Deadline: at(0)}, false, true, true},
		{"past deadline", entity.ApprovalInstance{Status: entity.StatusPending, Deadline: at(-time.Hour)}, false, true, true},
		{"terminal ignores deadline", entity.ApprovalInstance{Status: entity.StatusApproved, Deadline: at(-time.Hour)}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(&tt.inst, now, DefaultWarningWindow)
			assert.Equal(t, tt.urgent, s.Urgent)
			assert.Equal(t, tt.overdue, s.Overdue)
			assert.Equal(t, tt.deadline, s.Deadline != nil)
		})
	}
}

func TestEvaluate_DoesNotMutate(t *testing.T) {
	inst := &entity.ApprovalInstance{ID: "i1", Status: entity.StatusPending, Deadline: at(-time.Hour)}
	before := inst.Clone()

	Evaluate(inst, now, time.Hour)

	assert.Equal(t, before, inst)
}

func seed(t *testing.T, store *memory.Store, insts ...*entity.ApprovalInstance) {
	t.Helper()
	for _, inst := range insts {
		require.NoError(t, store.Instances().Create(context.Background(), inst))
	}
}

func TestMonitor_Scan(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		&entity.ApprovalInstance{ID: "late", Status: entity.StatusPending, Deadline: at(-2 * time.Hour)},
		&entity.ApprovalInstance{ID: "voted", Status: entity.StatusPending, Deadline: at(-time.Hour)},
		&entity.ApprovalInstance{ID: "broken", Status: entity.StatusPending, Deadline: at(-30 * time.Minute)},
		&entity.ApprovalInstance{ID: "fresh", Status: entity.StatusPending, Deadline: at(time.Hour)},
		&entity.ApprovalInstance{ID: "held", Status: entity.StatusPending, Deadline: at(-time.Hour), Hold: &entity.Hold{Reason: entity.HoldUnresolvedApprover}},
		&entity.ApprovalInstance{ID: "done", Status: entity.StatusApproved, Deadline: at(-time.Hour)},
	)
	engine := &mockEngine{timeoutFunc: func(_ context.Context, id string) (bool, error) {
		switch id {
		case "late":
			return true, nil
		case "broken":
			return false, errors.New("database is locked")
		}
		return false, nil
	}}
	m := NewMonitor(store.Instances(), engine, mockLogger{}, WithClock(func() time.Time { return now }))

	res, err := m.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Checked: 3, TimedOut: 1, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []string{"late", "voted", "broken"}, engine.calls)
}

func TestMonitor_ScanPagesThroughBatches(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		&entity.ApprovalInstance{ID: "a", Status: entity.StatusPending, Deadline: at(-3 * time.Hour)},
		&entity.ApprovalInstance{ID: "b", Status: entity.StatusPending, Deadline: at(-2 * time.Hour)},
		&entity.ApprovalInstance{ID: "c", Status: entity.StatusPending, Deadline: at(-time.Hour)},
	)
	engine := &mockEngine{timeoutFunc: func(context.Context, string) (bool, error) { return true, nil }}
	m := NewMonitor(store.Instances(), engine, mockLogger{}, WithClock(func() time.Time { return now }), WithBatchSize(2))

	res, err := m.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.TimedOut)
	assert.Equal(t, []string{"a", "b", "c"}, engine.calls)
}

func TestMonitor_VotedInstancesDoNotStarveStalledOnes(t *testing.T) {
	store := memory.NewStore()
	voted := entity.NodeRound{NodeID: "finance", Original: []string{"m1", "m2"}, Approvals: []string{"m1"}}
	seed(t, store,
		&entity.ApprovalInstance{ID: "voted1", Status: entity.StatusPending, Deadline: at(-3 * time.Hour), Round: voted},
		&entity.ApprovalInstance{ID: "voted2", Status: entity.StatusPending, Deadline: at(-2 * time.Hour), Round: voted},
		&entity.ApprovalInstance{ID: "stalled", Status: entity.StatusPending, Deadline: at(-time.Hour)},
	)
	engine := &mockEngine{timeoutFunc: func(_ context.Context, id string) (bool, error) { return id == "stalled", nil }}
	m := NewMonitor(store.Instances(), engine, mockLogger{}, WithClock(func() time.Time { return now }), WithBatchSize(2))

	res, err := m.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Checked: 1, TimedOut: 1}, res)
	assert.Equal(t, []string{"stalled"}, engine.calls)
}

func TestMonitor_SkippedRowsDoNotBlockLaterOnes(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		&entity.ApprovalInstance{ID: "racing", Status: entity.StatusPending, Deadline: at(-3 * time.Hour)},
		&entity.ApprovalInstance{ID: "broken", Status: entity.StatusPending, Deadline: at(-2 * time.Hour)},
		&entity.ApprovalInstance{ID: "stalled", Status: entity.StatusPending, Deadline: at(-time.Hour)},
	)
	engine := &mockEngine{timeoutFunc: func(_ context.Context, id string) (bool, error) {
		switch id {
		case "racing":
			return false, nil
		case "broken":
			return false, errors.New("database is locked")
		}
		return true, nil
	}}
	m := NewMonitor(store.Instances(), engine, mockLogger{}, WithClock(func() time.Time { return now }), WithBatchSize(2))

	res, err := m.Scan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Checked: 3, TimedOut: 1, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []string{"racing", "broken", "stalled"}, engine.calls)
}

func TestMonitor_ScanStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, &entity.ApprovalInstance{ID: "a", Status: entity.StatusPending, Deadline: at(-time.Hour)})
	engine := &mockEngine{timeoutFunc: func(context.Context, string) (bool, error) { return true, nil }}
	m := NewMonitor(store.Instances(), engine, mockLogger{}, WithClock(func() time.Time { return now }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Scan(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.calls)
}

func TestMonitor_SLA(t *testing.T) {
	engine := &mockEngine{getFunc: func(_ context.Context, id string) (*entity.ApprovalInstance, error) {
		if id != "i1" {
			return nil, entity.NewNotFoundError("instance", id)
		}
		return &entity.ApprovalInstance{ID: "i1", Status: entity.StatusPending, CurrentNode: "manager", Deadline: at(2 * time.Hour)}, nil
	}}
	m := NewMonitor(memory.NewStore().Instances(), engine, mockLogger{},
		WithClock(func() time.Time { return now }),
		WithWarningWindow(time.Hour),
	)

	s, err := m.SLA(context.Background(), "i1")
	require.NoError(t, err)
	assert.False(t, s.Urgent)
	assert.Equal(t, entity.NodeID("manager"), s.CurrentNode)
	require.NotNil(t, s.Remaining)
	assert.Equal(t, 2*time.Hour, *s.Remaining)
	assert.Equal(t, time.Hour, m.WarningWindow())

	_, err = m.SLA(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
