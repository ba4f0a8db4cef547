package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/pkg/database"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *DB {
	t.Helper()
	logger := zap.NewNop()
	raw, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "approval.db"), MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	require.NoError(t, database.NewMigrator(raw, logger).Run(context.Background(), database.Migrations()))
	return NewDB(raw.DB, logger)
}

func sampleTemplate(id string) *entity.ApprovalTemplate {
	return &entity.ApprovalTemplate{
		ID:           id,
		Name:         "Store opening",
		Category:     "expansion",
		BusinessType: entity.BusinessTypeStoreApplication,
		Version:      1,
		Nodes: []entity.ApprovalNode{
			{ID: "start", Type: entity.NodeTypeStart, Connections: []entity.NodeID{"manager"}},
			{ID: "manager", Type: entity.NodeTypeApproval, Connections: []entity.NodeID{"end"}, Approval: &entity.ApprovalSettings{
				Approvers:      entity.ApproverSpec{Kind: entity.ApproverRole, RoleID: "region_manager"},
				Policy:         entity.PolicyAll,
				TimeLimitHours: 24,
			}},
			{ID: "end", Type: entity.NodeTypeEnd},
		},
		FormSchema: entity.FormSchema{Fields: []entity.FormField{{Name: "budget", Type: entity.FieldNumber, Required: true}}},
		Creator:    "admin",
		CreateTime: t0,
		UpdateTime: t0,
	}
}

func sampleInstance(id string, created time.Time) *entity.ApprovalInstance {
	deadline := created.Add(24 * time.Hour)
	return &entity.ApprovalInstance{
		ID:               id,
		InstanceCode:     "AP-20260302-" + id,
		TemplateID:       "tpl-1",
		TemplateName:     "Store opening",
		TemplateVersion:  1,
		Nodes:            sampleTemplate("tpl-1").Nodes,
		Title:            "Store " + id,
		Category:         "expansion",
		BusinessType:     entity.BusinessTypeStoreApplication,
		Applicant:        "alice",
		FormData:         map[string]any{"budget": 1200.5, "city": "Shanghai"},
		Status:           entity.StatusPending,
		Priority:         entity.PriorityNormal,
		CurrentNode:      "manager",
		CurrentApprovers: []string{"m1", "m2"},
		Round:            entity.NodeRound{NodeID: "manager", EnteredAt: created, Original: []string{"m1", "m2"}},
		ExecutionPath:    []entity.NodeID{"start", "manager"},
		TotalNodes:       3,
		CompletedNodes:   1,
		CreateTime:       created,
		UpdateTime:       created,
		Deadline:         &deadline,
	}
}

func TestTemplateRepository_RoundTrip(t *testing.T) {
	db := openDB(t)
	repo := NewTemplateRepository(db, zap.NewNop())
	ctx := context.Background()

	tpl := sampleTemplate("tpl-1")
	require.NoError(t, repo.Create(ctx, tpl))

	got, err := repo.GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, tpl, got)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SetActive(ctx, "tpl-1", true, t0.Add(time.Hour)))
	got, err = repo.GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, t0.Add(time.Hour), got.UpdateTime)

	got.Name = "Store opening v2"
	got.Version = 2
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "Store opening v2", again.Name)
	assert.Equal(t, 2, again.Version)

	assert.Error(t, repo.Update(ctx, sampleTemplate("ghost")))

	require.NoError(t, repo.Delete(ctx, "tpl-1"))
	gone, err := repo.GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTemplateRepository_List(t *testing.T) {
	db := openDB(t)
	repo := NewTemplateRepository(db, zap.NewNop())
	ctx := context.Background()

	for i, name := range []string{"Store opening", "Contract review", "Budget change"} {
		tpl := sampleTemplate(string(rune('a' + i)))
		tpl.Name = name
		tpl.CreateTime = t0.Add(time.Duration(i) * time.Hour)
		tpl.IsActive = i != 1
		require.NoError(t, repo.Create(ctx, tpl))
	}

	active := true
	list, total, err := repo.List(ctx, port.TemplateFilter{Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Budget change", list[0].Name)

	list, total, err = repo.List(ctx, port.TemplateFilter{Keyword: "contract"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "b", list[0].ID)

	list, total, err = repo.List(ctx, port.TemplateFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestInstanceRepository_RoundTripAndCAS(t *testing.T) {
	db := openDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	inst := sampleInstance("i1", t0)
	require.NoError(t, repo.Create(ctx, inst))
	assert.Equal(t, int64(1), inst.Version)

	got, err := repo.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, inst, got)

	stale := got.Clone()
	got.Round.Approvals = []string{"m1"}
	got.UpdateTime = t0.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)

	stale.Status = entity.StatusCancelled
	err = repo.Update(ctx, stale, 1)
	assert.True(t, errors.Is(err, port.ErrVersionConflict))

	stored, err := repo.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, []string{"m1"}, stored.Round.Approvals)

	took := 90 * time.Minute
	stored.Status = entity.StatusApproved
	stored.Deadline = nil
	stored.ActualDuration = &took
	stored.Hold = nil
	stored.ClearRound()
	require.NoError(t, repo.Update(ctx, stored, 2))
	final, err := repo.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, final.Deadline)
	require.NotNil(t, final.ActualDuration)
	assert.Equal(t, took, *final.ActualDuration)
	assert.Empty(t, final.CurrentApprovers)

	assert.Error(t, repo.Update(ctx, sampleInstance("ghost", t0), 1))
}

func TestInstanceRepository_Queries(t *testing.T) {
	db := openDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	a := sampleInstance("a", t0)
	b := sampleInstance("b", t0.Add(time.Hour))
	b.CurrentApprovers = []string{"m3"}
	b.Priority = entity.PriorityUrgent
	c := sampleInstance("c", t0.Add(2*time.Hour))
	c.Hold = &entity.Hold{Reason: entity.HoldUnresolvedApprover, NodeID: "manager", Since: t0}
	d := sampleInstance("d", t0.Add(3*time.Hour))
	d.Status = entity.StatusApproved
	d.Category = "renovation"
	d.TemplateID = "tpl-2"
	for _, inst := range []*entity.ApprovalInstance{a, b, c, d} {
		require.NoError(t, repo.Create(ctx, inst))
	}

	ids := func(list []*entity.ApprovalInstance) []string {
		out := make([]string, len(list))
		for i, inst := range list {
			out[i] = inst.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter port.InstanceFilter
		want   []string
	}{
		{"all by create time", port.InstanceFilter{}, []string{"a", "b", "c", "d"}},
		{"status", port.InstanceFilter{Status: entity.StatusApproved}, []string{"d"}},
		{"approver", port.InstanceFilter{Approver: "m3"}, []string{"b"}},
		{"category", port.InstanceFilter{Category: "renovation"}, []string{"d"}},
		{"keyword on code", port.InstanceFilter{Keyword: "20260302-c"}, []string{"c"}},
		{"priority desc", port.InstanceFilter{SortBy: "priority", SortDesc: true, PageSize: 1}, []string{"b"}},
		{"created window", port.InstanceFilter{From: timePtr(t0.Add(time.Hour)), To: timePtr(t0.Add(3 * time.Hour))}, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}

	overdue, err := repo.ListOverdue(ctx, t0.Add(25*time.Hour+30*time.Minute), port.OverdueCursor{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(overdue))

	between, err := repo.ListCreatedBetween(ctx, t0, t0.Add(4*time.Hour), "expansion")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(between))

	n, err := repo.CountByTemplate(ctx, "tpl-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInstanceRepository_ListOverdueSkipsVotedRounds(t *testing.T) {
	db := openDB(t)
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()

	// Same creation time gives every instance the same deadline, so order falls back to id
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Create(ctx, sampleInstance(id, t0)))
	}
	voted, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	voted.Round.Approvals = []string{"m1"}
	require.NoError(t, repo.Update(ctx, voted, voted.Version))

	later := t0.Add(48 * time.Hour)
	overdue, err := repo.ListOverdue(ctx, later, port.OverdueCursor{}, 2)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "a", overdue[0].ID)
	assert.Equal(t, "c", overdue[1].ID)

	next, err := repo.ListOverdue(ctx, later, port.OverdueCursor{Deadline: *overdue[1].Deadline, ID: "c"}, 2)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "d", next[0].ID)

	// A new round starts with no approvals and is eligible again
	voted.Round = entity.NodeRound{NodeID: "finance", EnteredAt: t0}
	require.NoError(t, repo.Update(ctx, voted, voted.Version))
	overdue, err = repo.ListOverdue(ctx, later, port.OverdueCursor{}, 0)
	require.NoError(t, err)
	assert.Len(t, overdue, 4)
}

func TestRecordRepository(t *testing.T) {
	db := openDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	ctx := context.Background()

	first := &entity.ApprovalRecord{
		ID: "r1", InstanceID: "i1", NodeID: "manager", Approver: "m1", Action: entity.ActionApprove,
		Result: entity.ResultApproved, Comment: "ok", Attachments: []string{"site-plan.pdf"},
		NodeEnteredAt: t0, CreateTime: t0.Add(time.Hour),
	}
	second := &entity.ApprovalRecord{
		ID: "r2", InstanceID: "i1", NodeID: "manager", Approver: "m2", Action: entity.ActionAddSign,
		Result: entity.ResultPending, AddSignUsers: []string{"legal"}, Refusal: entity.CodeActionNotAllowed,
		NodeEnteredAt: t0, CreateTime: t0.Add(2 * time.Hour),
	}
	other := &entity.ApprovalRecord{
		ID: "r3", InstanceID: "i2", Approver: entity.SystemActor, Action: entity.ActionTimeout,
		Result: entity.ResultPending, CreateTime: t0,
	}
	for _, rec := range []*entity.ApprovalRecord{first, second, other} {
		require.NoError(t, repo.Create(ctx, rec))
	}

	list, err := repo.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0])
	assert.Equal(t, second, list[1])

	all, err := repo.ListByInstances(ctx, []string{"i2", "i1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.ListByInstances(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDB_WithTransactionRollsBack(t *testing.T) {
	db := openDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, &entity.ApprovalRecord{
			ID: "r1", InstanceID: "i1", Approver: "m1", Action: entity.ActionApprove, Result: entity.ResultApproved, CreateTime: t0,
		}))
		return db.WithTransaction(txCtx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	list, err := repo.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDB_WithTransactionRollsBackOnPanic(t *testing.T) {
	db := openDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	ctx := context.Background()

	assert.PanicsWithValue(t, "boom", func() {
		_ = db.WithTransaction(ctx, func(txCtx context.Context) error {
			require.NoError(t, repo.Create(txCtx, &entity.ApprovalRecord{
				ID: "r1", InstanceID: "i1", Approver: "m1", Action: entity.ActionApprove, Result: entity.ResultApproved, CreateTime: t0,
			}))
			panic("boom")
		})
	})

	list, err := repo.ListByInstance(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func timePtr(t time.Time) *time.Time { return &t }
