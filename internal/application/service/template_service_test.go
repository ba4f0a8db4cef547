package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/infrastructure/persistence/memory"
)

type mockLogger struct{}

func (mockLogger) Info(string, ...interface{})  {}
func (mockLogger) Error(string, ...interface{}) {}

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func storeOpening() TemplateInput {
	return TemplateInput{
		Name:         "Store opening",
		Category:     "expansion",
		BusinessType: entity.BusinessTypeStoreApplication,
		FormSchema: entity.FormSchema{Fields: []entity.FormField{
			{Name: "budget", Label: "Budget", Type: entity.FieldNumber, Required: true},
		}},
		Nodes: []entity.ApprovalNode{
			{ID: "start", Type: entity.NodeTypeStart, Connections: []entity.NodeID{"check"}},
			{ID: "check", Type: entity.NodeTypeCondition, Branches: []entity.ConditionBranch{
				{Target: "cfo", Conditions: []entity.ApprovalCondition{{Field: "budget", Operator: entity.OpGt, Value: 1000000}}},
				{Target: "end"},
			}},
			{ID: "cfo", Name: "CFO", Type: entity.NodeTypeApproval, Connections: []entity.NodeID{"end"}, Approval: &entity.ApprovalSettings{
				Approvers: entity.ApproverSpec{Kind: entity.ApproverFixed, UserIDs: []string{"cfo"}},
				Policy:    entity.PolicySingle,
			}},
			{ID: "end", Type: entity.NodeTypeEnd},
		},
	}
}

func newTemplateService(t *testing.T) (TemplateService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewTemplateService(store.Templates(), store.Instances(), store, mockLogger{}, WithTemplateClock(func() time.Time { return now }))
	return svc, store
}

func TestTemplateService_CreateActivate(t *testing.T) {
	svc, _ := newTemplateService(t)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, now, tpl.CreateTime)

	tpl, err = svc.Activate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.True(t, tpl.IsActive)

	stored, err := svc.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	tpl, err = svc.Deactivate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)
}

func TestTemplateService_ActivateListsEveryViolation(t *testing.T) {
	svc, _ := newTemplateService(t)
	in := storeOpening()
	in.Nodes[0].Connections = []entity.NodeID{"missing"}
	in.Nodes[2].Approval.Policy = "unanimous"

	tpl, err := svc.Create(context.Background(), in, "admin")
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), tpl.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrInvalidTemplate))

	var de *entity.Error
	require.True(t, errors.As(err, &de))
	assert.GreaterOrEqual(t, len(de.Violations), 2)
}

func TestTemplateService_CreateValidation(t *testing.T) {
	svc, _ := newTemplateService(t)

	in := storeOpening()
	in.Name = "  "
	_, err := svc.Create(context.Background(), in, "admin")
	assert.Equal(t, entity.CodeValidation, entity.CodeOf(err))

	in = storeOpening()
	in.BusinessType = "franchise"
	_, err = svc.Create(context.Background(), in, "admin")
	assert.Equal(t, entity.CodeValidation, entity.CodeOf(err))
}

func TestTemplateService_UpdateInUse(t *testing.T) {
	svc, store := newTemplateService(t)
	ctx := context.Background()
	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)
	require.NoError(t, store.Instances().Create(ctx, &entity.ApprovalInstance{ID: "i1", TemplateID: tpl.ID}))

	name := "Store opening v2"
	updated, err := svc.Update(ctx, tpl.ID, TemplatePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 1, updated.Version)

	_, err = svc.Update(ctx, tpl.ID, TemplatePatch{Nodes: storeOpening().Nodes})
	assert.True(t, errors.Is(err, entity.ErrTemplateInUse))

	assert.True(t, errors.Is(svc.Delete(ctx, tpl.ID), entity.ErrTemplateInUse))
}

type inTx struct{}

type markingTx struct {
	inner port.TransactionManager
	calls int
}

func (m *markingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return m.inner.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(context.WithValue(txCtx, inTx{}, true))
	})
}

// outsideTx collects the repository calls made without a transaction in ctx
type outsideTx []string

func (o *outsideTx) check(ctx context.Context, call string) {
	if ctx.Value(inTx{}) == nil {
		*o = append(*o, call)
	}
}

type spyTemplates struct {
	port.TemplateRepository
	outside *outsideTx
}

func (s spyTemplates) Update(ctx context.Context, tpl *entity.ApprovalTemplate) error {
	s.outside.check(ctx, "Update")
	return s.TemplateRepository.Update(ctx, tpl)
}

func (s spyTemplates) Delete(ctx context.Context, id string) error {
	s.outside.check(ctx, "Delete")
	return s.TemplateRepository.Delete(ctx, id)
}

type spyInstances struct {
	port.InstanceRepository
	outside *outsideTx
}

func (s spyInstances) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	s.outside.check(ctx, "CountByTemplate")
	return s.InstanceRepository.CountByTemplate(ctx, templateID)
}

func TestTemplateService_InUseCheckSharesTransactionWithWrite(t *testing.T) {
	store := memory.NewStore()
	outside := &outsideTx{}
	tx := &markingTx{inner: store}
	svc := NewTemplateService(spyTemplates{store.Templates(), outside}, spyInstances{store.Instances(), outside}, tx, mockLogger{})
	ctx := context.Background()

	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)
	nodes := storeOpening().Nodes
	nodes[2].Approval.TimeLimitHours = 48
	_, err = svc.Update(ctx, tpl.ID, TemplatePatch{Nodes: nodes})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, tpl.ID))

	assert.Empty(t, *outside)
	assert.Equal(t, 2, tx.calls)
}

func TestTemplateService_StructuralUpdateBumpsVersion(t *testing.T) {
	svc, _ := newTemplateService(t)
	ctx := context.Background()
	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, tpl.ID)
	require.NoError(t, err)

	nodes := storeOpening().Nodes
	nodes[2].Approval.TimeLimitHours = 48
	updated, err := svc.Update(ctx, tpl.ID, TemplatePatch{Nodes: nodes})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	broken := storeOpening().Nodes
	broken[3].Type = entity.NodeTypeApproval
	_, err = svc.Update(ctx, tpl.ID, TemplatePatch{Nodes: broken})
	assert.True(t, errors.Is(err, entity.ErrInvalidTemplate))
}

func TestTemplateService_CloneAndDelete(t *testing.T) {
	svc, _ := newTemplateService(t)
	ctx := context.Background()
	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)

	clone, err := svc.Clone(ctx, tpl.ID, "", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, tpl.ID, clone.ID)
	assert.Equal(t, "Store opening (copy)", clone.Name)
	assert.Equal(t, "bob", clone.Creator)
	assert.Len(t, clone.Nodes, len(tpl.Nodes))

	require.NoError(t, svc.Delete(ctx, tpl.ID))
	_, err = svc.Get(ctx, tpl.ID)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, tpl.ID), entity.ErrNotFound))
}

func TestTemplateService_ValidateDryRun(t *testing.T) {
	svc, _ := newTemplateService(t)

	report := svc.Validate(context.Background(), storeOpening())
	assert.True(t, report.Valid())

	in := storeOpening()
	in.Nodes[1].Branches = in.Nodes[1].Branches[:1]
	report = svc.Validate(context.Background(), in)
	assert.True(t, report.Valid())
	assert.NotEmpty(t, report.Warnings)
}

func TestTemplateService_Preview(t *testing.T) {
	svc, _ := newTemplateService(t)
	ctx := context.Background()
	tpl, err := svc.Create(ctx, storeOpening(), "admin")
	require.NoError(t, err)

	tests := []struct {
		name      string
		sample    map[string]any
		wantPath  []entity.NodeID
		approvals int
	}{
		{"large budget", map[string]any{"budget": 2000000}, []entity.NodeID{"start", "check", "cfo", "end"}, 1},
		{"small budget", map[string]any{"budget": 10}, []entity.NodeID{"start", "check", "end"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.Preview(ctx, tpl.ID, tt.sample)
			require.NoError(t, err)
			assert.True(t, p.Complete)
			assert.Equal(t, tt.wantPath, p.Path)
			assert.Equal(t, tt.approvals, p.ApprovalNodes)
		})
	}

	_, err = svc.Preview(ctx, tpl.ID, map[string]any{})
	assert.Equal(t, entity.CodeValidation, entity.CodeOf(err))
}
