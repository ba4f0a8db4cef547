package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

// ErrVersionConflict is returned by InstanceRepository.Update when the stored version moved on
var ErrVersionConflict = errors.New("instance version conflict")

// TemplateFilter narrows template listings
type TemplateFilter struct {
	Category     string
	BusinessType entity.BusinessType
	Active       *bool
	Keyword      string
	Page         int
	PageSize     int
}

// OverdueCursor resumes an overdue listing after the last instance returned.
// The zero value starts from the earliest deadline.
type OverdueCursor struct {
	Deadline time.Time
	ID       string
}

// InstanceFilter narrows instance listings. Zero values mean no filter.
type InstanceFilter struct {
	Status       entity.InstanceStatus
	Category     string
	BusinessType entity.BusinessType
	Applicant    string
	Approver     string
	TemplateID   string
	From         *time.Time
	To           *time.Time
	Keyword      string
	Page         int
	PageSize     int
	SortBy       string // create_time, deadline, priority
	SortDesc     bool
}

// TemplateRepository defines persistence operations for ApprovalTemplate.
// GetByID returns nil, nil when the template does not exist.
type TemplateRepository interface {
	Create(ctx context.Context, tpl *entity.ApprovalTemplate) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalTemplate, error)
	Update(ctx context.Context, tpl *entity.ApprovalTemplate) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TemplateFilter) ([]*entity.ApprovalTemplate, int, error)
}

// InstanceRepository defines persistence operations for ApprovalInstance.
// GetByID returns nil, nil when the instance does not exist.
type InstanceRepository interface {
	Create(ctx context.Context, inst *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error)

	// Update stores inst only if the stored version equals expectedVersion, and bumps
	// inst.Version. ErrVersionConflict otherwise.
	Update(ctx context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error

	List(ctx context.Context, filter InstanceFilter) ([]*entity.ApprovalInstance, int, error)

	// ListOverdue returns pending, unheld instances whose deadline is before now and
	// whose current round has no approvals, ordered by deadline then id, after cursor
	ListOverdue(ctx context.Context, now time.Time, after OverdueCursor, limit int) ([]*entity.ApprovalInstance, error)

	// ListCreatedBetween feeds statistics; category is optional
	ListCreatedBetween(ctx context.Context, from, to time.Time, category string) ([]*entity.ApprovalInstance, error)

	CountByTemplate(ctx context.Context, templateID string) (int, error)
}

// RecordRepository defines persistence operations for ApprovalRecord. Records are append-only.
type RecordRepository interface {
	Create(ctx context.Context, rec *entity.ApprovalRecord) error

	// ListByInstance returns records in the order they were written
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalRecord, error)

	ListByInstances(ctx context.Context, instanceIDs []string) ([]*entity.ApprovalRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// InstanceLocker serialises work on one instance across goroutines or replicas
type InstanceLocker interface {
	Lock(ctx context.Context, instanceID string) (unlock func(), err error)
}
