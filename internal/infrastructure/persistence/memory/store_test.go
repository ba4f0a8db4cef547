package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func instance(id string, offset time.Duration, mutate func(*entity.ApprovalInstance)) *entity.ApprovalInstance {
	inst := &entity.ApprovalInstance{
		ID:           id,
		InstanceCode: "AP-20260301-" + id,
		TemplateID:   "tpl",
		Title:        "Store " + id,
		Category:     "expansion",
		Applicant:    "alice",
		Status:       entity.StatusPending,
		Priority:     entity.PriorityNormal,
		CreateTime:   base.Add(offset),
	}
	if mutate != nil {
		mutate(inst)
	}
	return inst
}

func ids(list []*entity.ApprovalInstance) []string {
	out := make([]string, len(list))
	for i, inst := range list {
		out[i] = inst.ID
	}
	return out
}

func TestInstanceRepository_VersionCheck(t *testing.T) {
	repo := NewStore().Instances()
	ctx := context.Background()

	inst := instance("a", 0, nil)
	require.NoError(t, repo.Create(ctx, inst))
	assert.Equal(t, int64(1), inst.Version)
	assert.Error(t, repo.Create(ctx, inst), "duplicate id")

	stored, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	stored.Title = "Renamed"
	require.NoError(t, repo.Update(ctx, stored, 1))
	assert.Equal(t, int64(2), stored.Version)

	stale := instance("a", 0, nil)
	err = repo.Update(ctx, stale, 1)
	assert.True(t, errors.Is(err, port.ErrVersionConflict))

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstanceRepository_ReturnsCopies(t *testing.T) {
	repo := NewStore().Instances()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, instance("a", 0, func(i *entity.ApprovalInstance) {
		i.CurrentApprovers = []string{"m1"}
	})))

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	got.CurrentApprovers[0] = "intruder"

	again, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, again.CurrentApprovers)
}

func TestInstanceRepository_ListFilterSortPage(t *testing.T) {
	repo := NewStore().Instances()
	ctx := context.Background()
	soon, later := base.Add(time.Hour), base.Add(2*time.Hour)
	for _, inst := range []*entity.ApprovalInstance{
		instance("a", 0, func(i *entity.ApprovalInstance) { i.Deadline = &later }),
		instance("b", time.Minute, func(i *entity.ApprovalInstance) { i.Priority = entity.PriorityUrgent }),
		instance("c", 2*time.Minute, func(i *entity.ApprovalInstance) {
			i.Deadline = &soon
			i.CurrentApprovers = []string{"m1"}
		}),
		instance("d", 3*time.Minute, func(i *entity.ApprovalInstance) {
			i.Status = entity.StatusApproved
			i.Applicant = "bob"
		}),
	} {
		require.NoError(t, repo.Create(ctx, inst))
	}

	tests := []struct {
		name   string
		filter port.InstanceFilter
		want   []string
		total  int
	}{
		{"default order", port.InstanceFilter{}, []string{"a", "b", "c", "d"}, 4},
		{"newest first", port.InstanceFilter{SortDesc: true}, []string{"d", "c", "b", "a"}, 4},
		{"deadline, missing last", port.InstanceFilter{SortBy: "deadline"}, []string{"c", "a", "b", "d"}, 4},
		{"priority desc", port.InstanceFilter{SortBy: "priority", SortDesc: true}, []string{"b", "a", "c", "d"}, 4},
		{"status", port.InstanceFilter{Status: entity.StatusPending}, []string{"a", "b", "c"}, 3},
		{"applicant", port.InstanceFilter{Applicant: "bob"}, []string{"d"}, 1},
		{"approver", port.InstanceFilter{Approver: "m1"}, []string{"c"}, 1},
		{"keyword matches code", port.InstanceFilter{Keyword: "20260301-B"}, []string{"b"}, 1},
		{"second page", port.InstanceFilter{Page: 2, PageSize: 3}, []string{"d"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
			assert.Equal(t, tt.total, total)
		})
	}
}

func TestInstanceRepository_ListOverdue(t *testing.T) {
	repo := NewStore().Instances()
	ctx := context.Background()
	past, earlier, future := base.Add(-time.Hour), base.Add(-2*time.Hour), base.Add(time.Hour)
	for _, inst := range []*entity.ApprovalInstance{
		instance("late", 0, func(i *entity.ApprovalInstance) { i.Deadline = &past }),
		instance("later", 0, func(i *entity.ApprovalInstance) { i.Deadline = &earlier }),
		instance("fine", 0, func(i *entity.ApprovalInstance) { i.Deadline = &future }),
		instance("held", 0, func(i *entity.ApprovalInstance) {
			i.Deadline = &past
			i.Hold = &entity.Hold{}
		}),
		instance("done", 0, func(i *entity.ApprovalInstance) {
			i.Deadline = &past
			i.Status = entity.StatusApproved
		}),
		instance("voted", 0, func(i *entity.ApprovalInstance) {
			i.Deadline = &earlier
			i.Round = entity.NodeRound{Original: []string{"m1", "m2"}, Approvals: []string{"m1"}}
		}),
		instance("tie", 0, func(i *entity.ApprovalInstance) { i.Deadline = &past }),
	} {
		require.NoError(t, repo.Create(ctx, inst))
	}

	list, err := repo.ListOverdue(ctx, base, port.OverdueCursor{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "late", "tie"}, ids(list))

	list, err = repo.ListOverdue(ctx, base, port.OverdueCursor{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, ids(list))

	list, err = repo.ListOverdue(ctx, base, port.OverdueCursor{Deadline: past, ID: "late"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"tie"}, ids(list))
}

func TestRecordRepository_KeepsWriteOrder(t *testing.T) {
	repo := NewStore().Records()
	ctx := context.Background()
	for _, approver := range []string{"m1", "m2", "m3"} {
		require.NoError(t, repo.Create(ctx, &entity.ApprovalRecord{ID: approver, InstanceID: "a", Approver: approver}))
	}
	require.NoError(t, repo.Create(ctx, &entity.ApprovalRecord{ID: "x", InstanceID: "b", Approver: "x"}))

	recs, err := repo.ListByInstance(ctx, "a")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "m3", recs[2].Approver)

	recs, err = repo.ListByInstances(ctx, []string{"b", "a"})
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Equal(t, "x", recs[0].Approver)
}

func TestStore_WithTransactionSerializes(t *testing.T) {
	s := NewStore()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTransaction(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)
				// Nested transactions join the outer one instead of deadlocking
				_ = s.WithTransaction(ctx, func(context.Context) error { return nil })

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
