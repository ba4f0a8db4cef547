package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/event"
	"github.com/garyjia/store-approval/internal/domain/form"
	"github.com/garyjia/store-approval/internal/domain/graph"
	"github.com/garyjia/store-approval/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// errNoChange aborts a mutation without writing anything
var errNoChange = errors.New("no change")

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	templates  port.TemplateRepository
	instances  port.InstanceRepository
	records    port.RecordRepository
	txManager  port.TransactionManager
	locker     port.InstanceLocker
	resolver   ApproverResolver
	dispatcher dispatcher.Dispatcher
	logger     Logger

	clock      func() time.Time
	casRetries int
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithClock replaces time.Now; tests use it to drive deadlines
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

// WithCASRetries sets how often a write is retried after a version conflict
func WithCASRetries(n int) EngineOption {
	return func(e *engineImpl) {
		e.casRetries = n
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	records port.RecordRepository,
	txManager port.TransactionManager,
	locker port.InstanceLocker,
	resolver ApproverResolver,
	logger Logger,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		templates:  templates,
		instances:  instances,
		records:    records,
		txManager:  txManager,
		locker:     locker,
		resolver:   resolver,
		logger:     logger,
		clock:      time.Now,
		casRetries: 3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) now() time.Time {
	return e.clock().UTC()
}

func (e *engineImpl) GetInstance(ctx context.Context, instanceID string) (*entity.ApprovalInstance, error) {
	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", instanceID, err)
	}
	if inst == nil {
		return nil, entity.NewNotFoundError("instance", instanceID)
	}
	return inst, nil
}

func (e *engineImpl) ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.ApprovalInstance, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, entity.NewValidationError("unknown status %q", filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	return e.instances.List(ctx, filter)
}

func (e *engineImpl) Records(ctx context.Context, instanceID string) ([]*entity.ApprovalRecord, error) {
	if _, err := e.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	recs, err := e.records.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", instanceID, err)
	}
	return recs, nil
}

func (e *engineImpl) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.ApprovalInstance, error) {
	req.Title = strings.TrimSpace(utils.SanitizeString(req.Title))
	req.Applicant = strings.TrimSpace(req.Applicant)
	switch {
	case req.TemplateID == "":
		return nil, entity.NewValidationError("template_id is required")
	case req.Title == "":
		return nil, entity.NewValidationError("title is required")
	case req.Applicant == "":
		return nil, entity.NewValidationError("applicant is required")
	}
	if req.Priority == "" {
		req.Priority = entity.PriorityNormal
	}
	if !req.Priority.IsValid() {
		return nil, entity.NewValidationError("unknown priority %q", req.Priority)
	}
	if req.FormData == nil {
		req.FormData = map[string]any{}
	}

	tpl, err := e.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", req.TemplateID, err)
	}
	if tpl == nil {
		return nil, entity.NewNotFoundError("template", req.TemplateID)
	}
	if !tpl.IsActive {
		return nil, entity.NewValidationError("template %s is not active", tpl.ID)
	}
	if err := form.ValidateData(tpl.FormSchema, req.FormData); err != nil {
		return nil, err
	}

	g, err := graph.Compile(tpl.Nodes)
	if err != nil {
		return nil, fmt.Errorf("template %s does not compile: %w", tpl.ID, err)
	}

	now := e.now()
	inst := &entity.ApprovalInstance{
		ID:                  uuid.NewString(),
		InstanceCode:        newInstanceCode(now),
		TemplateID:          tpl.ID,
		TemplateName:        tpl.Name,
		TemplateVersion:     tpl.Version,
		Nodes:               entity.CloneNodes(tpl.Nodes),
		Title:               req.Title,
		Category:            tpl.Category,
		BusinessType:        tpl.BusinessType,
		Applicant:           req.Applicant,
		ApplicantDepartment: req.ApplicantDepartment,
		FormData:            entity.CloneData(req.FormData),
		Status:              entity.StatusPending,
		Priority:            req.Priority,
		CurrentApprovers:    []string{},
		CreateTime:          now,
		UpdateTime:          now,
		Version:             1,
	}
	path, _ := graph.Predict(g, inst.FormData)
	inst.TotalNodes = graph.CountApprovals(g, path)

	m := newMutation(ctx, inst, g, now)
	m.emit(event.TypeInstanceCreated, map[string]any{
		event.KeyApplicant: inst.Applicant,
		event.KeyTitle:     inst.Title,
	})
	if err := e.start(m); err != nil {
		return nil, err
	}
	if req.Deadline != nil && inst.Status == entity.StatusPending && inst.Hold == nil {
		d := req.Deadline.UTC()
		inst.Deadline = &d
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// A template deleted or deactivated since the read above gains no instances
		current, err := e.templates.GetByID(txCtx, tpl.ID)
		if err != nil {
			return fmt.Errorf("failed to get template %s: %w", tpl.ID, err)
		}
		if current == nil {
			return entity.NewNotFoundError("template", tpl.ID)
		}
		if !current.IsActive {
			return entity.NewValidationError("template %s is not active", tpl.ID)
		}
		if err := e.instances.Create(txCtx, inst); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}
		return e.appendRecords(txCtx, m.records)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Instance created",
		"instance_id", inst.ID,
		"instance_code", inst.InstanceCode,
		"template_id", tpl.ID,
		"status", inst.Status,
		"current_node", inst.CurrentNode,
	)
	e.publish(ctx, m.events)
	return inst.Clone(), m.holdErr
}

func (e *engineImpl) ProcessAction(ctx context.Context, req ProcessActionRequest) (*entity.ApprovalInstance, error) {
	cmd, err := commandFromRequest(req)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, req.InstanceID, func(m *mutation) error {
		return e.applyActorCommand(m, cmd)
	})
}

func (e *engineImpl) Cancel(ctx context.Context, instanceID, actor, reason string) (*entity.ApprovalInstance, error) {
	return e.ProcessAction(ctx, ProcessActionRequest{
		InstanceID: instanceID,
		Action:     entity.ActionCancel,
		Actor:      actor,
		Comment:    reason,
	})
}

// applyActorCommand refuses actions on instances that no longer accept them
func (e *engineImpl) applyActorCommand(m *mutation, cmd command) error {
	if m.inst.Status.IsTerminal() {
		return m.refuse(cmd, entity.NewAlreadyTerminalError(m.inst.ID, m.inst.Status))
	}
	return cmd.apply(e, m)
}

// mutate runs fn against a fresh copy of the instance under the instance lock and
// persists the result with the records it produced. A version conflict reloads and
// retries. When fn refuses, only its records are stored and the refusal is returned.
func (e *engineImpl) mutate(ctx context.Context, instanceID string, fn func(m *mutation) error) (*entity.ApprovalInstance, error) {
	unlock, err := e.locker.Lock(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock instance %s: %w", instanceID, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		stored, err := e.GetInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		g, err := graph.Compile(stored.Nodes)
		if err != nil {
			return nil, fmt.Errorf("instance %s snapshot does not compile: %w", instanceID, err)
		}

		m := newMutation(ctx, stored.Clone(), g, e.now())
		fnErr := fn(m)
		if errors.Is(fnErr, errNoChange) {
			return stored, nil
		}
		if fnErr != nil {
			if len(m.records) > 0 {
				if err := e.appendRecords(ctx, m.records); err != nil {
					return nil, err
				}
				e.publish(ctx, m.events)
			}
			return nil, fnErr
		}

		m.inst.UpdateTime = m.now
		err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.instances.Update(txCtx, m.inst, stored.Version); err != nil {
				return err
			}
			return e.appendRecords(txCtx, m.records)
		})
		if errors.Is(err, port.ErrVersionConflict) && attempt < e.casRetries {
			e.logger.Info("Instance changed concurrently, retrying", "instance_id", instanceID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save instance %s: %w", instanceID, err)
		}

		e.publish(ctx, m.events)
		return m.inst.Clone(), m.holdErr
	}
}

func (e *engineImpl) appendRecords(ctx context.Context, recs []*entity.ApprovalRecord) error {
	for _, rec := range recs {
		if err := e.records.Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to append record: %w", err)
		}
	}
	return nil
}

func (e *engineImpl) publish(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range events {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

// newInstanceCode returns a human readable code such as AP-20260115-4F09C2
func newInstanceCode(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("AP-%s-%s", at.Format("20060102"), suffix)
}
