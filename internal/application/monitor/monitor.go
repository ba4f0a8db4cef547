package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// DefaultWarningWindow is how long before its deadline an instance is flagged urgent
const DefaultWarningWindow = 12 * time.Hour

// SLA is the advisory timing view of one instance. It never changes state.
type SLA struct {
	InstanceID  string                `json:"instance_id"`
	Status      entity.InstanceStatus `json:"status"`
	CurrentNode entity.NodeID         `json:"current_node"`
	EnteredAt   time.Time             `json:"entered_at"`
	Deadline    *time.Time            `json:"deadline,omitempty"`
	Remaining   *time.Duration        `json:"remaining,omitempty"`
	Urgent      bool                  `json:"urgent"`
	Overdue     bool                  `json:"overdue"`
	Held        bool                  `json:"held"`
}

// Evaluate computes the SLA flags of an instance at now.
// Only pending instances with a deadline can be urgent or overdue.
func Evaluate(inst *entity.ApprovalInstance, now time.Time, window time.Duration) SLA {
	s := SLA{
		InstanceID:  inst.ID,
		Status:      inst.Status,
		CurrentNode: inst.CurrentNode,
		EnteredAt:   inst.Round.EnteredAt,
		Held:        inst.Hold != nil,
	}
	if inst.Status != entity.StatusPending || inst.Deadline == nil {
		return s
	}
	deadline := *inst.Deadline
	remaining := deadline.Sub(now)
	s.Deadline = &deadline
	s.Remaining = &remaining
	if now.Before(deadline) {
		s.Urgent = remaining <= window
	} else {
		s.Overdue = true
	}
	return s
}

// ScanResult summarises one pass over overdue instances
type ScanResult struct {
	Checked  int `json:"checked"`
	TimedOut int `json:"timed_out"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Engine is the part of the workflow engine the monitor drives
type Engine interface {
	GetInstance(ctx context.Context, instanceID string) (*entity.ApprovalInstance, error)
	Timeout(ctx context.Context, instanceID string) (bool, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Monitor finds instances past their deadline and times them out
type Monitor interface {
	// Scan times out every overdue instance, paging through them batch by batch
	Scan(ctx context.Context) (ScanResult, error)

	// SLA reports the timing flags of one instance
	SLA(ctx context.Context, instanceID string) (*SLA, error)

	// WarningWindow is the urgency threshold in use
	WarningWindow() time.Duration
}

type monitorImpl struct {
	instances port.InstanceRepository
	engine    Engine
	logger    Logger
	clock     func() time.Time
	window    time.Duration
	batchSize int
}

// Option configures the monitor
type Option func(*monitorImpl)

func WithWarningWindow(window time.Duration) Option {
	return func(m *monitorImpl) {
		if window > 0 {
			m.window = window
		}
	}
}

// WithBatchSize sets how many overdue instances one listing returns
func WithBatchSize(n int) Option {
	return func(m *monitorImpl) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(m *monitorImpl) {
		m.clock = clock
	}
}

// NewMonitor creates a new SLA monitor
func NewMonitor(instances port.InstanceRepository, engine Engine, logger Logger, opts ...Option) Monitor {
	m := &monitorImpl{
		instances: instances,
		engine:    engine,
		logger:    logger,
		clock:     time.Now,
		window:    DefaultWarningWindow,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *monitorImpl) WarningWindow() time.Duration {
	return m.window
}

func (m *monitorImpl) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	now := m.clock().UTC()
	var cursor port.OverdueCursor

	// Skipped and failed rows stay overdue, so the cursor moves past them
	// instead of listing the same head of the queue again
	for {
		overdue, err := m.instances.ListOverdue(ctx, now, cursor, m.batchSize)
		if err != nil {
			return res, fmt.Errorf("failed to list overdue instances: %w", err)
		}

		for _, inst := range overdue {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Checked++
			// The engine re-checks under the instance lock; a vote since the listing skips it
			fired, err := m.engine.Timeout(ctx, inst.ID)
			switch {
			case err != nil:
				res.Failed++
				m.logger.Error("Failed to time out instance", "instance_id", inst.ID, "error", err)
			case fired:
				res.TimedOut++
			default:
				res.Skipped++
			}
		}

		if len(overdue) < m.batchSize {
			break
		}
		last := overdue[len(overdue)-1]
		cursor = port.OverdueCursor{Deadline: *last.Deadline, ID: last.ID}
	}

	if res.Checked > 0 {
		m.logger.Info("SLA scan finished",
			"checked", res.Checked,
			"timed_out", res.TimedOut,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (m *monitorImpl) SLA(ctx context.Context, instanceID string) (*SLA, error) {
	inst, err := m.engine.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	s := Evaluate(inst, m.clock().UTC(), m.window)
	return &s, nil
}
