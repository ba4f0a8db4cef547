package directory

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/garyjia/store-approval/internal/application/port"
)

// Deduplicated collapses identical lookups that are in flight at the same time.
// Results are never kept after the call returns.
type Deduplicated struct {
	next  port.Directory
	group singleflight.Group
}

// Deduplicate wraps a directory
func Deduplicate(next port.Directory) *Deduplicated {
	return &Deduplicated{next: next}
}

func (d *Deduplicated) RoleMembers(ctx context.Context, roleID string) ([]string, error) {
	v, err := do(ctx, &d.group, "role:"+roleID, func(ctx context.Context) (any, error) {
		return d.next.RoleMembers(ctx, roleID)
	})
	if err != nil {
		return nil, err
	}
	// Callers may keep the slice; each gets its own copy
	return append([]string(nil), v.([]string)...), nil
}

func (d *Deduplicated) DepartmentManager(ctx context.Context, departmentID string) (string, error) {
	return doString(ctx, &d.group, "dept_manager:"+departmentID, func(ctx context.Context) (string, error) {
		return d.next.DepartmentManager(ctx, departmentID)
	})
}

func (d *Deduplicated) ReportingManager(ctx context.Context, actorID string) (string, error) {
	return doString(ctx, &d.group, "manager:"+actorID, func(ctx context.Context) (string, error) {
		return d.next.ReportingManager(ctx, actorID)
	})
}

func (d *Deduplicated) DepartmentOf(ctx context.Context, actorID string) (string, error) {
	return doString(ctx, &d.group, "dept_of:"+actorID, func(ctx context.Context) (string, error) {
		return d.next.DepartmentOf(ctx, actorID)
	})
}

// do runs fn once per key; every waiter still honours its own context
func do(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := g.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func doString(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (string, error)) (string, error) {
	v, err := do(ctx, g, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

var _ port.Directory = (*Deduplicated)(nil)
