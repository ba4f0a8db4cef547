package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct{ s *Store }

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct{ s *Store }

// RecordRepository implements port.RecordRepository
type RecordRepository struct{ s *Store }

var (
	_ port.TemplateRepository = (*TemplateRepository)(nil)
	_ port.InstanceRepository = (*InstanceRepository)(nil)
	_ port.RecordRepository   = (*RecordRepository)(nil)
)

func (r *TemplateRepository) Create(_ context.Context, tpl *entity.ApprovalTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[tpl.ID]; ok {
		return fmt.Errorf("template %s already exists", tpl.ID)
	}
	r.s.templates[tpl.ID] = tpl.Clone()
	return nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*entity.ApprovalTemplate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.templates[id].Clone(), nil
}

func (r *TemplateRepository) Update(_ context.Context, tpl *entity.ApprovalTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[tpl.ID]; !ok {
		return fmt.Errorf("template %s not found", tpl.ID)
	}
	r.s.templates[tpl.ID] = tpl.Clone()
	return nil
}

func (r *TemplateRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tpl, ok := r.s.templates[id]
	if !ok {
		return fmt.Errorf("template %s not found", id)
	}
	tpl.IsActive = active
	tpl.UpdateTime = at
	return nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.templates, id)
	return nil
}

func (r *TemplateRepository) List(_ context.Context, f port.TemplateFilter) ([]*entity.ApprovalTemplate, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	keyword := strings.ToLower(f.Keyword)
	var out []*entity.ApprovalTemplate
	for _, t := range r.s.templates {
		switch {
		case f.Category != "" && t.Category != f.Category:
			continue
		case f.BusinessType != "" && t.BusinessType != f.BusinessType:
			continue
		case f.Active != nil && t.IsActive != *f.Active:
			continue
		case keyword != "" && !strings.Contains(strings.ToLower(t.Name+" "+t.Description), keyword):
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	page, total := paginate(out, f.Page, f.PageSize)
	return page, total, nil
}

func (r *InstanceRepository) Create(_ context.Context, inst *entity.ApprovalInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	if inst.Version == 0 {
		inst.Version = 1
	}
	r.s.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*entity.ApprovalInstance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.instances[id].Clone(), nil
}

func (r *InstanceRepository) Update(_ context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.instances[inst.ID]
	if !ok {
		return fmt.Errorf("instance %s not found", inst.ID)
	}
	if cur.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	inst.Version = expectedVersion + 1
	r.s.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *InstanceRepository) List(_ context.Context, f port.InstanceFilter) ([]*entity.ApprovalInstance, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ApprovalInstance
	for _, inst := range r.s.instances {
		if matches(inst, f) {
			out = append(out, inst.Clone())
		}
	}
	sortInstances(out, f.SortBy, f.SortDesc)
	page, total := paginate(out, f.Page, f.PageSize)
	return page, total, nil
}

func (r *InstanceRepository) ListOverdue(_ context.Context, now time.Time, after port.OverdueCursor, limit int) ([]*entity.ApprovalInstance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ApprovalInstance
	for _, inst := range r.s.instances {
		if inst.Status != entity.StatusPending || inst.Hold != nil || inst.Deadline == nil || !inst.Deadline.Before(now) {
			continue
		}
		if len(inst.Round.Approvals) > 0 || !pastCursor(inst, after) {
			continue
		}
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline.Equal(*out[j].Deadline) {
			return out[i].ID < out[j].ID
		}
		return out[i].Deadline.Before(*out[j].Deadline)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// pastCursor reports whether inst sorts after the cursor by (deadline, id)
func pastCursor(inst *entity.ApprovalInstance, after port.OverdueCursor) bool {
	if after.ID == "" {
		return true
	}
	if c := inst.Deadline.Compare(after.Deadline); c != 0 {
		return c > 0
	}
	return inst.ID > after.ID
}

func (r *InstanceRepository) ListCreatedBetween(_ context.Context, from, to time.Time, category string) ([]*entity.ApprovalInstance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ApprovalInstance
	for _, inst := range r.s.instances {
		if inst.CreateTime.Before(from) || !inst.CreateTime.Before(to) {
			continue
		}
		if category != "" && inst.Category != category {
			continue
		}
		out = append(out, inst.Clone())
	}
	sortInstances(out, "create_time", false)
	return out, nil
}

func (r *InstanceRepository) CountByTemplate(_ context.Context, templateID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, inst := range r.s.instances {
		if inst.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func (r *RecordRepository) Create(_ context.Context, rec *entity.ApprovalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.records[rec.InstanceID] = append(r.s.records[rec.InstanceID], rec.Clone())
	return nil
}

func (r *RecordRepository) ListByInstance(_ context.Context, instanceID string) ([]*entity.ApprovalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.records[instanceID]
	out := make([]*entity.ApprovalRecord, len(stored))
	for i, rec := range stored {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (r *RecordRepository) ListByInstances(ctx context.Context, instanceIDs []string) ([]*entity.ApprovalRecord, error) {
	var out []*entity.ApprovalRecord
	for _, id := range instanceIDs {
		recs, _ := r.ListByInstance(ctx, id)
		out = append(out, recs...)
	}
	return out, nil
}

func matches(inst *entity.ApprovalInstance, f port.InstanceFilter) bool {
	switch {
	case f.Status != "" && inst.Status != f.Status:
		return false
	case f.Category != "" && inst.Category != f.Category:
		return false
	case f.BusinessType != "" && inst.BusinessType != f.BusinessType:
		return false
	case f.Applicant != "" && inst.Applicant != f.Applicant:
		return false
	case f.Approver != "" && !slices.Contains(inst.CurrentApprovers, f.Approver):
		return false
	case f.TemplateID != "" && inst.TemplateID != f.TemplateID:
		return false
	case f.From != nil && inst.CreateTime.Before(*f.From):
		return false
	case f.To != nil && !inst.CreateTime.Before(*f.To):
		return false
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		return strings.Contains(strings.ToLower(inst.Title), kw) || strings.Contains(strings.ToLower(inst.InstanceCode), kw)
	}
	return true
}

var priorityRank = map[entity.Priority]int{
	entity.PriorityLow:    0,
	entity.PriorityNormal: 1,
	entity.PriorityHigh:   2,
	entity.PriorityUrgent: 3,
}

// sortInstances orders ascending by key, then by id; instances without a deadline sort last
func sortInstances(list []*entity.ApprovalInstance, by string, desc bool) {
	less := func(a, b *entity.ApprovalInstance) int {
		switch by {
		case "deadline":
			switch {
			case a.Deadline == nil && b.Deadline == nil:
				return 0
			case a.Deadline == nil:
				return 1
			case b.Deadline == nil:
				return -1
			}
			return a.Deadline.Compare(*b.Deadline)
		case "priority":
			return priorityRank[a.Priority] - priorityRank[b.Priority]
		}
		return a.CreateTime.Compare(b.CreateTime)
	}
	slices.SortStableFunc(list, func(a, b *entity.ApprovalInstance) int {
		c := less(a, b)
		if desc {
			c = -c
		}
		if c == 0 {
			return strings.Compare(a.ID, b.ID)
		}
		return c
	})
}

func paginate[T any](list []T, page, size int) ([]T, int) {
	total := len(list)
	if size <= 0 {
		return list, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= total {
		return []T{}, total
	}
	end := min(start+size, total)
	return list[start:end], total
}
