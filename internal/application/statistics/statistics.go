package statistics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/store-approval/internal/application/monitor"
	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// DefaultPeriod is the window used when a query names no start
const DefaultPeriod = 30 * 24 * time.Hour

// Query selects the instances created in [From, To), optionally one category
type Query struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Category string    `json:"category,omitempty"`
}

// ApproverStats summarises one approver's decisions
type ApproverStats struct {
	Approver        string        `json:"approver"`
	Decisions       int           `json:"decisions"`
	Approvals       int           `json:"approvals"`
	Rejections      int           `json:"rejections"`
	AverageResponse time.Duration `json:"average_response"`
}

// Report is the aggregate view of a window
type Report struct {
	From            time.Time                     `json:"from"`
	To              time.Time                     `json:"to"`
	Category        string                        `json:"category,omitempty"`
	Total           int                           `json:"total"`
	ByStatus        map[entity.InstanceStatus]int `json:"by_status"`
	ByBusinessType  map[entity.BusinessType]int   `json:"by_business_type"`
	ByCategory      map[string]int                `json:"by_category"`
	Approvers       []ApproverStats               `json:"approvers"`
	AverageDuration time.Duration                 `json:"average_duration"`
	Completed       int                           `json:"completed"`

	// OnTimeRate is the share of terminal instances that finished within the summed time
	// limits of the nodes they visited. Without limits the allowance is zero. Nil when
	// nothing in the window is terminal.
	OnTimeRate *float64 `json:"on_time_rate,omitempty"`
	Terminal   int      `json:"terminal"`
	OnTime     int      `json:"on_time"`

	// OnTimeRateLimited measures only the terminal instances whose visited nodes carry a limit
	OnTimeRateLimited *float64 `json:"on_time_rate_limited,omitempty"`
	LimitedTerminal   int      `json:"limited_terminal"`
	LimitedOnTime     int      `json:"limited_on_time"`

	Urgent  int `json:"urgent"`
	Overdue int `json:"overdue"`
}

// Aggregate builds the report from instances and their records. now and window drive
// the urgent and overdue counts.
func Aggregate(q Query, instances []*entity.ApprovalInstance, records []*entity.ApprovalRecord, now time.Time, window time.Duration) *Report {
	r := &Report{
		From:           q.From,
		To:             q.To,
		Category:       q.Category,
		Total:          len(instances),
		ByStatus:       make(map[entity.InstanceStatus]int, len(entity.AllStatuses)),
		ByBusinessType: map[entity.BusinessType]int{},
		ByCategory:     map[string]int{},
		Approvers:      []ApproverStats{},
	}
	for _, s := range entity.AllStatuses {
		r.ByStatus[s] = 0
	}

	var totalDuration time.Duration
	for _, inst := range instances {
		r.ByStatus[inst.Status]++
		r.ByBusinessType[inst.BusinessType]++
		r.ByCategory[inst.Category]++

		if inst.ActualDuration != nil && decided(inst.Status) {
			r.Completed++
			totalDuration += *inst.ActualDuration
		}
		if inst.Status.IsTerminal() {
			allowed := allowedDuration(inst)
			onTime := inst.ActualDuration != nil && *inst.ActualDuration <= allowed
			r.Terminal++
			if onTime {
				r.OnTime++
			}
			if allowed > 0 {
				r.LimitedTerminal++
				if onTime {
					r.LimitedOnTime++
				}
			}
		}

		sla := monitor.Evaluate(inst, now, window)
		if sla.Urgent {
			r.Urgent++
		}
		if sla.Overdue {
			r.Overdue++
		}
	}
	if r.Completed > 0 {
		r.AverageDuration = totalDuration / time.Duration(r.Completed)
	}
	r.OnTimeRate = ratio(r.OnTime, r.Terminal)
	r.OnTimeRateLimited = ratio(r.LimitedOnTime, r.LimitedTerminal)

	r.Approvers = approverStats(records)
	return r
}

// decided reports whether an instance finished with an approver decision
func decided(s entity.InstanceStatus) bool {
	return s == entity.StatusApproved || s == entity.StatusRejected
}

func ratio(n, d int) *float64 {
	if d == 0 {
		return nil
	}
	v := float64(n) / float64(d)
	return &v
}

// allowedDuration sums the time limits of the approval nodes an instance visited
func allowedDuration(inst *entity.ApprovalInstance) time.Duration {
	var total time.Duration
	seen := make(map[entity.NodeID]bool, len(inst.ExecutionPath))
	for _, id := range inst.ExecutionPath {
		if seen[id] {
			continue
		}
		seen[id] = true
		if n, ok := inst.Node(id); ok && n.Type == entity.NodeTypeApproval {
			total += n.Approval.TimeLimit()
		}
	}
	return total
}

func approverStats(records []*entity.ApprovalRecord) []ApproverStats {
	type acc struct {
		stats    ApproverStats
		response time.Duration
	}
	by := map[string]*acc{}
	for _, rec := range records {
		if !rec.IsDecision() || rec.Approver == entity.SystemActor {
			continue
		}
		a, ok := by[rec.Approver]
		if !ok {
			a = &acc{stats: ApproverStats{Approver: rec.Approver}}
			by[rec.Approver] = a
		}
		a.stats.Decisions++
		if rec.Action == entity.ActionApprove {
			a.stats.Approvals++
		} else {
			a.stats.Rejections++
		}
		if !rec.NodeEnteredAt.IsZero() {
			a.response += rec.CreateTime.Sub(rec.NodeEnteredAt)
		}
	}

	out := make([]ApproverStats, 0, len(by))
	for _, a := range by {
		a.stats.AverageResponse = a.response / time.Duration(a.stats.Decisions)
		out = append(out, a.stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Decisions != out[j].Decisions {
			return out[i].Decisions > out[j].Decisions
		}
		return out[i].Approver < out[j].Approver
	})
	return out
}

// Service answers statistics queries from the repositories
type Service interface {
	Generate(ctx context.Context, q Query) (*Report, error)
}

type serviceImpl struct {
	instances port.InstanceRepository
	records   port.RecordRepository
	clock     func() time.Time
	window    time.Duration
}

// Option configures the statistics service
type Option func(*serviceImpl)

func WithClock(clock func() time.Time) Option {
	return func(s *serviceImpl) {
		s.clock = clock
	}
}

// WithWarningWindow sets the urgency threshold; it should match the monitor's
func WithWarningWindow(window time.Duration) Option {
	return func(s *serviceImpl) {
		if window > 0 {
			s.window = window
		}
	}
}

// NewService creates a new statistics service
func NewService(instances port.InstanceRepository, records port.RecordRepository, opts ...Option) Service {
	s := &serviceImpl{
		instances: instances,
		records:   records,
		clock:     time.Now,
		window:    monitor.DefaultWarningWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) Generate(ctx context.Context, q Query) (*Report, error) {
	now := s.clock().UTC()
	if q.To.IsZero() {
		q.To = now
	}
	if q.From.IsZero() {
		q.From = q.To.Add(-DefaultPeriod)
	}
	if !q.From.Before(q.To) {
		return nil, entity.NewValidationError("from must be before to")
	}

	instances, err := s.instances.ListCreatedBetween(ctx, q.From, q.To, q.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	var records []*entity.ApprovalRecord
	if len(ids) > 0 {
		records, err = s.records.ListByInstances(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
	}
	return Aggregate(q, instances, records, now, s.window), nil
}
