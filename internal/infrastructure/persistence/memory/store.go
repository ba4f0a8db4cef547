// Package memory keeps templates, instances and records in process memory.
// It backs tests and single-node deployments that run with database.driver=memory.
package memory

import (
	"context"
	"sync"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Store holds all three collections behind one lock
type Store struct {
	mu        sync.RWMutex
	templates map[string]*entity.ApprovalTemplate
	instances map[string]*entity.ApprovalInstance
	records   map[string][]*entity.ApprovalRecord

	txMu sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		templates: make(map[string]*entity.ApprovalTemplate),
		instances: make(map[string]*entity.ApprovalInstance),
		records:   make(map[string][]*entity.ApprovalRecord),
	}
}

// Templates returns the template repository view of the store
func (s *Store) Templates() *TemplateRepository { return &TemplateRepository{s: s} }

// Instances returns the instance repository view of the store
func (s *Store) Instances() *InstanceRepository { return &InstanceRepository{s: s} }

// Records returns the record repository view of the store
func (s *Store) Records() *RecordRepository { return &RecordRepository{s: s} }

// WithTransaction runs transactions one at a time. Writes are not rolled back
// when fn fails; the instance version check is what keeps concurrent writers apart.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

type txKey struct{}

var _ port.TransactionManager = (*Store)(nil)
