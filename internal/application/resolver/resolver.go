// Package resolver turns a node's approver settings into concrete actor ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// InstanceContext is what a source may read about the instance being routed
type InstanceContext struct {
	InstanceID          string
	Applicant           string
	ApplicantDepartment string
}

// Logger interface for resolver logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// source is the closed set of approver kinds
type source interface {
	resolve(ctx context.Context, dir port.Directory, ictx InstanceContext) ([]string, error)
}

type fixedSource struct{ userIDs []string }

type roleSource struct{ roleID string }

type departmentManagerSource struct{ departmentID string }

type initiatorManagerSource struct{}

var errUnknownKind = errors.New("unknown approver kind")

func sourceOf(spec entity.ApproverSpec) (source, error) {
	switch spec.Kind {
	case entity.ApproverFixed:
		return fixedSource{userIDs: spec.UserIDs}, nil
	case entity.ApproverRole:
		return roleSource{roleID: spec.RoleID}, nil
	case entity.ApproverDepartmentManager:
		return departmentManagerSource{departmentID: spec.DepartmentID}, nil
	case entity.ApproverInitiatorManager:
		return initiatorManagerSource{}, nil
	}
	return nil, fmt.Errorf("%w %q", errUnknownKind, spec.Kind)
}

func (s fixedSource) resolve(context.Context, port.Directory, InstanceContext) ([]string, error) {
	return s.userIDs, nil
}

func (s roleSource) resolve(ctx context.Context, dir port.Directory, _ InstanceContext) ([]string, error) {
	members, err := dir.RoleMembers(ctx, s.roleID)
	if err != nil {
		return nil, fmt.Errorf("role %s members: %w", s.roleID, err)
	}
	return members, nil
}

func (s departmentManagerSource) resolve(ctx context.Context, dir port.Directory, ictx InstanceContext) ([]string, error) {
	dept := s.departmentID
	if dept == "" {
		dept = ictx.ApplicantDepartment
	}
	if dept == "" {
		d, err := dir.DepartmentOf(ctx, ictx.Applicant)
		if err != nil {
			return nil, fmt.Errorf("department of %s: %w", ictx.Applicant, err)
		}
		dept = d
	}
	if dept == "" {
		return nil, fmt.Errorf("applicant %s has no department", ictx.Applicant)
	}
	manager, err := dir.DepartmentManager(ctx, dept)
	if err != nil {
		return nil, fmt.Errorf("manager of department %s: %w", dept, err)
	}
	return []string{manager}, nil
}

func (initiatorManagerSource) resolve(ctx context.Context, dir port.Directory, ictx InstanceContext) ([]string, error) {
	manager, err := dir.ReportingManager(ctx, ictx.Applicant)
	if err != nil {
		return nil, fmt.Errorf("reporting manager of %s: %w", ictx.Applicant, err)
	}
	return []string{manager}, nil
}

// Resolver resolves approvers afresh on every call; nothing is cached
type Resolver struct {
	directory port.Directory
	timeout   time.Duration
	logger    Logger
}

// New creates a resolver. timeout bounds every directory lookup; zero means no bound.
func New(directory port.Directory, timeout time.Duration, logger Logger) *Resolver {
	return &Resolver{directory: directory, timeout: timeout, logger: logger}
}

// Resolve returns the distinct actors for a node, in source order.
// An empty result or any directory failure is an UnresolvedApproverError.
func (r *Resolver) Resolve(ctx context.Context, node entity.NodeID, spec entity.ApproverSpec, ictx InstanceContext) ([]string, error) {
	src, err := sourceOf(spec)
	if err != nil {
		return nil, entity.NewUnresolvedApproverError(node, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ids, err := src.resolve(ctx, r.directory, ictx)
	if err != nil {
		r.logger.Error("Approver resolution failed", "instance_id", ictx.InstanceID, "node_id", node, "kind", spec.Kind, "error", err)
		return nil, entity.NewUnresolvedApproverError(node, err)
	}

	approvers := distinct(ids)
	if len(approvers) == 0 {
		r.logger.Error("Approver resolution returned nobody", "instance_id", ictx.InstanceID, "node_id", node, "kind", spec.Kind)
		return nil, entity.NewUnresolvedApproverError(node, nil)
	}
	r.logger.Info("Approvers resolved", "instance_id", ictx.InstanceID, "node_id", node, "count", len(approvers))
	return approvers, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
