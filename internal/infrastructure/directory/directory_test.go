package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chart = `
users:
  alice: {department: east, manager: bob}
  dave: {department: east}
  carol: {department: east}
departments:
  east: {manager: carol}
roles:
  region_manager: [m1, m2]
`

func loadChart(t *testing.T) *Static {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(chart), 0o600))
	dir, err := LoadStatic(path)
	require.NoError(t, err)
	return dir
}

func TestStatic_Lookups(t *testing.T) {
	dir := loadChart(t)
	ctx := context.Background()

	members, err := dir.RoleMembers(ctx, "region_manager")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, members)

	manager, err := dir.DepartmentManager(ctx, "east")
	require.NoError(t, err)
	assert.Equal(t, "carol", manager)

	manager, err = dir.ReportingManager(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", manager)

	manager, err = dir.ReportingManager(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "carol", manager, "falls back to the department head")

	_, err = dir.ReportingManager(ctx, "carol")
	assert.Error(t, err, "a department head does not report to themselves")

	dept, err := dir.DepartmentOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "east", dept)
}

func TestStatic_Unknown(t *testing.T) {
	dir := loadChart(t)
	ctx := context.Background()

	_, err := dir.RoleMembers(ctx, "cfo")
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = dir.DepartmentManager(ctx, "west")
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = dir.DepartmentOf(ctx, "zoe")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestLoadStatic_Errors(t *testing.T) {
	_, err := LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles: [oops"), 0o600))
	_, err = LoadStatic(path)
	assert.Error(t, err)
}

// slowDirectory blocks role lookups until released and counts calls
type slowDirectory struct {
	*Static
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowDirectory) RoleMembers(ctx context.Context, roleID string) ([]string, error) {
	s.calls.Add(1)
	<-s.release
	return s.Static.RoleMembers(ctx, roleID)
}

func TestDeduplicated_CollapsesConcurrentLookups(t *testing.T) {
	slow := &slowDirectory{Static: loadChart(t), release: make(chan struct{})}
	dir := Deduplicate(slow)

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = dir.RoleMembers(context.Background(), "region_manager")
		}(i)
	}

	// Let every caller join the flight before releasing it
	assert.Eventually(t, func() bool { return slow.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(slow.release)
	wg.Wait()

	assert.Equal(t, int32(1), slow.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"m1", "m2"}, results[i])
	}

	// Nothing is cached once the flight lands
	_, err := dir.RoleMembers(context.Background(), "region_manager")
	require.NoError(t, err)
	assert.Equal(t, int32(2), slow.calls.Load())
}

func TestDeduplicated_HonoursCallerContext(t *testing.T) {
	slow := &slowDirectory{Static: loadChart(t), release: make(chan struct{})}
	defer close(slow.release)
	dir := Deduplicate(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := dir.RoleMembers(ctx, "region_manager")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDeduplicated_PassesThroughStrings(t *testing.T) {
	dir := Deduplicate(loadChart(t))

	manager, err := dir.DepartmentManager(context.Background(), "east")
	require.NoError(t, err)
	assert.Equal(t, "carol", manager)

	_, err = dir.DepartmentOf(context.Background(), "zoe")
	assert.ErrorIs(t, err, ErrUnknown)
}
