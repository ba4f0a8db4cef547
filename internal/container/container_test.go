package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/store-approval/internal/application/service"
	"github.com/garyjia/store-approval/internal/application/workflow"
	"github.com/garyjia/store-approval/internal/config"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	chart := filepath.Join(dir, "directory.yaml")
	require.NoError(t, os.WriteFile(chart, []byte("roles:\n  finance: [fin1]\n"), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Driver = driver
	cfg.Database.Path = filepath.Join(dir, "approval.db")
	cfg.Directory.StaticFile = chart
	cfg.Monitor.ScanInterval = 20 * time.Millisecond
	return cfg
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t, "memory")
	cfg.Lock.Driver = "zookeeper"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "lock.driver")
}

func TestContainer_Lifecycle(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			c, err := NewContainer(testConfig(t, driver), zap.NewNop())
			require.NoError(t, err)
			ctx := context.Background()

			require.NoError(t, c.Start(ctx))
			assert.True(t, c.Ready())
			assert.NoError(t, c.Health(ctx))
			assert.Error(t, c.Start(ctx))
			assert.NotNil(t, c.Metrics())

			tpl, err := c.Services().Templates.Create(ctx, service.TemplateInput{
				Name:         "Renovation",
				BusinessType: entity.BusinessTypeConstruction,
				Nodes: []entity.ApprovalNode{
					{ID: "start", Type: entity.NodeTypeStart, Connections: []entity.NodeID{"finance"}},
					{ID: "finance", Type: entity.NodeTypeApproval, Connections: []entity.NodeID{"end"}, Approval: &entity.ApprovalSettings{
						Approvers: entity.ApproverSpec{Kind: entity.ApproverRole, RoleID: "finance"},
						Policy:    entity.PolicySingle,
					}},
					{ID: "end", Type: entity.NodeTypeEnd},
				},
			}, "admin")
			require.NoError(t, err)
			_, err = c.Services().Templates.Activate(ctx, tpl.ID)
			require.NoError(t, err)

			inst, err := c.WorkflowEngine().CreateInstance(ctx, workflow.CreateInstanceRequest{
				TemplateID: tpl.ID,
				Title:      "Refit store #3",
				Applicant:  "alice",
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"fin1"}, inst.CurrentApprovers)

			require.NoError(t, c.Close())
			assert.False(t, c.Ready())
			assert.Error(t, c.Health(ctx))
			assert.Error(t, c.Close())
			assert.Error(t, c.Start(ctx))
		})
	}
}

func TestContainer_StartFailureReleases(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	cfg.Directory.StaticFile = filepath.Join(t.TempDir(), "missing.yaml")
	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())

	assert.ErrorContains(t, err, "failed to initialize infrastructure")
	assert.False(t, c.Ready())
}

func TestLoggerAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewLoggerAdapter(zap.New(core))

	a.Info("Instance created", "instance_id", "i1", "version", 2, 42, "ignored key", "dangling")
	a.Error("Failed", "error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]interface{}{"instance_id": "i1", "version": int64(2)}, entries[0].ContextMap())
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
