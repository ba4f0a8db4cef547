package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/form"
	"github.com/garyjia/store-approval/internal/domain/graph"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TemplateInput is the full definition of a template
type TemplateInput struct {
	Name         string                `json:"name" yaml:"name"`
	Description  string                `json:"description" yaml:"description"`
	Category     string                `json:"category" yaml:"category"`
	BusinessType entity.BusinessType   `json:"business_type" yaml:"business_type"`
	Nodes        []entity.ApprovalNode `json:"nodes" yaml:"nodes"`
	FormSchema   entity.FormSchema     `json:"form_schema" yaml:"form_schema"`
}

// TemplatePatch changes selected fields. Nodes, FormSchema and BusinessType are structural.
type TemplatePatch struct {
	Name         *string               `json:"name"`
	Description  *string               `json:"description"`
	Category     *string               `json:"category"`
	BusinessType *entity.BusinessType  `json:"business_type"`
	Nodes        []entity.ApprovalNode `json:"nodes"`
	FormSchema   *entity.FormSchema    `json:"form_schema"`
}

func (p TemplatePatch) structural() bool {
	return p.BusinessType != nil || p.Nodes != nil || p.FormSchema != nil
}

// Preview is the path a sample submission would take if every approval passed
type Preview struct {
	Path          []entity.NodeID `json:"path"`
	ApprovalNodes int             `json:"approval_nodes"`
	Complete      bool            `json:"complete"`
	BlockedAt     entity.NodeID   `json:"blocked_at,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// TemplateService manages approval templates
type TemplateService interface {
	Create(ctx context.Context, in TemplateInput, creator string) (*entity.ApprovalTemplate, error)
	Update(ctx context.Context, id string, patch TemplatePatch) (*entity.ApprovalTemplate, error)
	Activate(ctx context.Context, id string) (*entity.ApprovalTemplate, error)
	Deactivate(ctx context.Context, id string) (*entity.ApprovalTemplate, error)
	Clone(ctx context.Context, id, name, creator string) (*entity.ApprovalTemplate, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*entity.ApprovalTemplate, error)
	List(ctx context.Context, filter port.TemplateFilter) ([]*entity.ApprovalTemplate, int, error)

	// Validate checks a definition without storing it
	Validate(ctx context.Context, in TemplateInput) graph.Report

	// Preview routes sample form data through a stored template
	Preview(ctx context.Context, id string, sample map[string]any) (*Preview, error)
}

type templateServiceImpl struct {
	templates port.TemplateRepository
	instances port.InstanceRepository
	txManager port.TransactionManager
	logger    Logger
	clock     func() time.Time
}

// TemplateOption configures the template service
type TemplateOption func(*templateServiceImpl)

// WithTemplateClock replaces time.Now
func WithTemplateClock(clock func() time.Time) TemplateOption {
	return func(s *templateServiceImpl) {
		s.clock = clock
	}
}

// NewTemplateService creates a new TemplateService. Update and Delete count a
// template's instances and write in one transaction of txManager.
func NewTemplateService(templates port.TemplateRepository, instances port.InstanceRepository, txManager port.TransactionManager, logger Logger, opts ...TemplateOption) TemplateService {
	s := &templateServiceImpl{
		templates: templates,
		instances: instances,
		txManager: txManager,
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *templateServiceImpl) now() time.Time {
	return s.clock().UTC()
}

// Create stores an inactive draft; full validation runs on activation
func (s *templateServiceImpl) Create(ctx context.Context, in TemplateInput, creator string) (*entity.ApprovalTemplate, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, entity.NewValidationError("name is required")
	}
	if !in.BusinessType.IsValid() {
		return nil, entity.NewValidationError("unknown business type %q", in.BusinessType)
	}

	now := s.now()
	tpl := &entity.ApprovalTemplate{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		Category:     in.Category,
		BusinessType: in.BusinessType,
		Version:      1,
		Nodes:        entity.CloneNodes(in.Nodes),
		FormSchema:   in.FormSchema,
		Creator:      creator,
		CreateTime:   now,
		UpdateTime:   now,
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		s.logger.Error("Failed to create template", "name", tpl.Name, "error", err)
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.Info("Template created", "template_id", tpl.ID, "name", tpl.Name, "creator", creator)
	return tpl, nil
}

// Update applies a patch. Structural changes are refused once instances exist.
func (s *templateServiceImpl) Update(ctx context.Context, id string, patch TemplatePatch) (*entity.ApprovalTemplate, error) {
	var updated *entity.ApprovalTemplate
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tpl, err := s.update(txCtx, id, patch)
		updated = tpl
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Template updated", "template_id", id, "version", updated.Version, "structural", patch.structural())
	return updated, nil
}

func (s *templateServiceImpl) update(ctx context.Context, id string, patch TemplatePatch) (*entity.ApprovalTemplate, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.structural() {
		n, err := s.instances.CountByTemplate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count instances of %s: %w", id, err)
		}
		if n > 0 {
			return nil, entity.NewTemplateInUseError(id, n)
		}
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, entity.NewValidationError("name is required")
		}
		tpl.Name = name
	}
	if patch.Description != nil {
		tpl.Description = *patch.Description
	}
	if patch.Category != nil {
		tpl.Category = *patch.Category
	}
	if patch.BusinessType != nil {
		if !patch.BusinessType.IsValid() {
			return nil, entity.NewValidationError("unknown business type %q", *patch.BusinessType)
		}
		tpl.BusinessType = *patch.BusinessType
	}
	if patch.Nodes != nil {
		tpl.Nodes = entity.CloneNodes(patch.Nodes)
	}
	if patch.FormSchema != nil {
		tpl.FormSchema = *patch.FormSchema
	}

	if patch.structural() {
		tpl.Version++
		// An active template must stay runnable
		if tpl.IsActive {
			if report := graph.ValidateTemplate(tpl); !report.Valid() {
				return nil, entity.NewInvalidTemplateError(report.Errors)
			}
		}
	}
	tpl.UpdateTime = s.now()

	if err := s.templates.Update(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to update template %s: %w", id, err)
	}
	return tpl, nil
}

// Activate validates the template in full and flips it on
func (s *templateServiceImpl) Activate(ctx context.Context, id string) (*entity.ApprovalTemplate, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := graph.ValidateTemplate(tpl)
	if !report.Valid() {
		s.logger.Info("Template activation refused", "template_id", id, "violations", len(report.Errors))
		return nil, entity.NewInvalidTemplateError(report.Errors)
	}
	for _, w := range report.Warnings {
		s.logger.Info("Template warning", "template_id", id, "warning", w.String())
	}

	return s.setActive(ctx, tpl, true)
}

func (s *templateServiceImpl) Deactivate(ctx context.Context, id string) (*entity.ApprovalTemplate, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, tpl, false)
}

func (s *templateServiceImpl) setActive(ctx context.Context, tpl *entity.ApprovalTemplate, active bool) (*entity.ApprovalTemplate, error) {
	now := s.now()
	if err := s.templates.SetActive(ctx, tpl.ID, active, now); err != nil {
		return nil, fmt.Errorf("failed to set template %s active=%t: %w", tpl.ID, active, err)
	}
	tpl.IsActive = active
	tpl.UpdateTime = now
	s.logger.Info("Template activation changed", "template_id", tpl.ID, "active", active)
	return tpl, nil
}

// Clone copies a template into a new inactive draft
func (s *templateServiceImpl) Clone(ctx context.Context, id, name, creator string) (*entity.ApprovalTemplate, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = src.Name + " (copy)"
	}
	return s.Create(ctx, TemplateInput{
		Name:         name,
		Description:  src.Description,
		Category:     src.Category,
		BusinessType: src.BusinessType,
		Nodes:        src.Nodes,
		FormSchema:   src.Clone().FormSchema,
	}, creator)
}

func (s *templateServiceImpl) Delete(ctx context.Context, id string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.Get(txCtx, id); err != nil {
			return err
		}
		n, err := s.instances.CountByTemplate(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to count instances of %s: %w", id, err)
		}
		if n > 0 {
			return entity.NewTemplateInUseError(id, n)
		}
		if err := s.templates.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete template %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Template deleted", "template_id", id)
	return nil
}

func (s *templateServiceImpl) Get(ctx context.Context, id string) (*entity.ApprovalTemplate, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", id, err)
	}
	if tpl == nil {
		return nil, entity.NewNotFoundError("template", id)
	}
	return tpl, nil
}

func (s *templateServiceImpl) List(ctx context.Context, filter port.TemplateFilter) ([]*entity.ApprovalTemplate, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.templates.List(ctx, filter)
}

func (s *templateServiceImpl) Validate(_ context.Context, in TemplateInput) graph.Report {
	return graph.ValidateTemplate(&entity.ApprovalTemplate{
		Name:         in.Name,
		Description:  in.Description,
		Category:     in.Category,
		BusinessType: in.BusinessType,
		Nodes:        in.Nodes,
		FormSchema:   in.FormSchema,
	})
}

func (s *templateServiceImpl) Preview(ctx context.Context, id string, sample map[string]any) (*Preview, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report := graph.ValidateTemplate(tpl); !report.Valid() {
		return nil, entity.NewInvalidTemplateError(report.Errors)
	}
	if sample == nil {
		sample = map[string]any{}
	}
	if err := form.ValidateData(tpl.FormSchema, sample); err != nil {
		return nil, err
	}

	g, err := graph.Compile(tpl.Nodes)
	if err != nil {
		return nil, fmt.Errorf("template %s does not compile: %w", id, err)
	}
	path, err := graph.Predict(g, sample)
	p := &Preview{Path: path, ApprovalNodes: graph.CountApprovals(g, path)}
	switch {
	case err == nil:
		p.Complete = true
	case errors.Is(err, entity.ErrNoMatchingCondition):
		p.BlockedAt = path[len(path)-1]
		p.Reason = err.Error()
	default:
		return nil, err
	}
	return p, nil
}
