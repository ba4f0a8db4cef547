package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/application/service"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// ListTemplatesQuery represents query parameters for listing templates
type ListTemplatesQuery struct {
	Category     string `form:"category"`
	BusinessType string `form:"businessType"`
	Active       *bool  `form:"active"`
	Keyword      string `form:"keyword"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// CloneTemplateRequest names the copy
type CloneTemplateRequest struct {
	Name string `json:"name"`
}

// PreviewRequest carries sample form data
type PreviewRequest struct {
	FormData map[string]any `json:"form_data"`
}

// ValidationResponse is the dry-run result of POST /templates/validate
type ValidationResponse struct {
	Valid    bool               `json:"valid"`
	Errors   []entity.Violation `json:"errors"`
	Warnings []entity.Violation `json:"warnings"`
}

// CreateTemplate handles POST /api/v1/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var in service.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, entity.NewValidationError("invalid request body: %v", err), nil)
		return
	}

	tpl, err := h.services.Templates.Create(c.Request.Context(), in, actorOf(c))
	if err != nil {
		h.fail(c, "create_template", err, nil)
		return
	}
	ok(c, http.StatusCreated, tpl)
}

// UpdateTemplate handles PUT /api/v1/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	var patch service.TemplatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, entity.NewValidationError("invalid request body: %v", err), nil)
		return
	}

	tpl, err := h.services.Templates.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, "update_template", err, nil)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// DeleteTemplate handles DELETE /api/v1/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.services.Templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete_template", err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTemplate handles GET /api/v1/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	tpl, err := h.services.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_template", err, nil)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	var q ListTemplatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, entity.NewValidationError("invalid query parameters: %v", err), nil)
		return
	}

	filter := port.TemplateFilter{
		Category:     q.Category,
		BusinessType: entity.BusinessType(q.BusinessType),
		Active:       q.Active,
		Keyword:      q.Keyword,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}
	items, total, err := h.services.Templates.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "list_templates", err, nil)
		return
	}
	if items == nil {
		items = []*entity.ApprovalTemplate{}
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	ok(c, http.StatusOK, PageResponse{Items: items, Total: total, Page: page, PageSize: q.PageSize})
}

// ValidateTemplate handles POST /api/v1/templates/validate. Problems are reported, not failed.
func (h *Handlers) ValidateTemplate(c *gin.Context) {
	var in service.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, entity.NewValidationError("invalid request body: %v", err), nil)
		return
	}

	report := h.services.Templates.Validate(c.Request.Context(), in)
	resp := ValidationResponse{Valid: report.Valid(), Errors: report.Errors, Warnings: report.Warnings}
	if resp.Errors == nil {
		resp.Errors = []entity.Violation{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []entity.Violation{}
	}
	ok(c, http.StatusOK, resp)
}

// ActivateTemplate handles POST /api/v1/templates/:id/activate
func (h *Handlers) ActivateTemplate(c *gin.Context) {
	tpl, err := h.services.Templates.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "activate_template", err, nil)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// DeactivateTemplate handles POST /api/v1/templates/:id/deactivate
func (h *Handlers) DeactivateTemplate(c *gin.Context) {
	tpl, err := h.services.Templates.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "deactivate_template", err, nil)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// CloneTemplate handles POST /api/v1/templates/:id/clone
func (h *Handlers) CloneTemplate(c *gin.Context) {
	var req CloneTemplateRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}

	tpl, err := h.services.Templates.Clone(c.Request.Context(), c.Param("id"), req.Name, actorOf(c))
	if err != nil {
		h.fail(c, "clone_template", err, nil)
		return
	}
	ok(c, http.StatusCreated, tpl)
}

// PreviewTemplate handles POST /api/v1/templates/:id/preview
func (h *Handlers) PreviewTemplate(c *gin.Context) {
	var req PreviewRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}

	preview, err := h.services.Templates.Preview(c.Request.Context(), c.Param("id"), req.FormData)
	if err != nil {
		h.fail(c, "preview_template", err, nil)
		return
	}
	ok(c, http.StatusOK, preview)
}
