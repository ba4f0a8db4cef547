package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/application/workflow"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// CreateInstanceRequest is the body of POST /instances. The applicant is the caller.
type CreateInstanceRequest struct {
	TemplateID          string          `json:"template_id" binding:"required"`
	Title               string          `json:"title" binding:"required"`
	ApplicantDepartment string          `json:"applicant_department"`
	FormData            map[string]any  `json:"form_data"`
	Priority            entity.Priority `json:"priority"`
	Deadline            string          `json:"deadline"`
}

// ProcessActionRequest is the body of POST /instances/:id/process
type ProcessActionRequest struct {
	Action       entity.Action `json:"action" binding:"required"`
	Comment      string        `json:"comment"`
	Attachments  []string      `json:"attachments"`
	TransferTo   string        `json:"transfer_to"`
	AddSignUsers []string      `json:"add_sign_users"`
}

// CommentRequest carries an optional comment or reason
type CommentRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// RemediateRequest is the body of POST /instances/:id/remediate
type RemediateRequest struct {
	Approvers  []string      `json:"approvers"`
	TargetNode entity.NodeID `json:"target_node"`
	Comment    string        `json:"comment"`
}

// ListInstancesQuery represents query parameters for listing instances
type ListInstancesQuery struct {
	Status       string `form:"status"`
	Category     string `form:"category"`
	BusinessType string `form:"businessType"`
	Applicant    string `form:"applicant"`
	Approver     string `form:"approver"`
	From         string `form:"from"`
	To           string `form:"to"`
	Keyword      string `form:"keyword"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	Sort         string `form:"sort" binding:"omitempty,oneof=create_time -create_time deadline -deadline priority -priority"`
}

func (q ListInstancesQuery) filter() (port.InstanceFilter, error) {
	f := port.InstanceFilter{
		Status:       entity.InstanceStatus(q.Status),
		Category:     q.Category,
		BusinessType: entity.BusinessType(q.BusinessType),
		Applicant:    q.Applicant,
		Approver:     q.Approver,
		Keyword:      q.Keyword,
		Page:         q.Page,
		PageSize:     q.PageSize,
		SortBy:       strings.TrimPrefix(q.Sort, "-"),
		SortDesc:     strings.HasPrefix(q.Sort, "-"),
	}
	var err error
	if f.From, err = parseTime("from", q.From); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.To); err != nil {
		return f, err
	}
	return f, nil
}

// CreateInstance handles POST /api/v1/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, entity.NewValidationError("invalid request body: %v", err), nil)
		return
	}
	deadline, err := parseTime("deadline", req.Deadline)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	inst, err := h.services.Engine.CreateInstance(c.Request.Context(), workflow.CreateInstanceRequest{
		TemplateID:          req.TemplateID,
		Title:               req.Title,
		Applicant:           actorOf(c),
		ApplicantDepartment: req.ApplicantDepartment,
		FormData:            req.FormData,
		Priority:            req.Priority,
		Deadline:            deadline,
	})
	if err != nil {
		h.fail(c, "create_instance", err, committed(inst))
		return
	}
	ok(c, http.StatusCreated, inst)
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, err := h.services.Engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_instance", err, nil)
		return
	}
	ok(c, http.StatusOK, inst)
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var q ListInstancesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, entity.NewValidationError("invalid query parameters: %v", err), nil)
		return
	}
	filter, err := q.filter()
	if err != nil {
		writeError(c, err, nil)
		return
	}

	items, total, err := h.services.Engine.ListInstances(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "list_instances", err, nil)
		return
	}
	if items == nil {
		items = []*entity.ApprovalInstance{}
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	ok(c, http.StatusOK, PageResponse{Items: items, Total: total, Page: page, PageSize: size})
}

// ProcessAction handles POST /api/v1/instances/:id/process
func (h *Handlers) ProcessAction(c *gin.Context) {
	var req ProcessActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, entity.NewValidationError("invalid request body: %v", err), nil)
		return
	}

	inst, err := h.services.Engine.ProcessAction(c.Request.Context(), workflow.ProcessActionRequest{
		InstanceID:   c.Param("id"),
		Action:       req.Action,
		Actor:        actorOf(c),
		Comment:      req.Comment,
		Attachments:  req.Attachments,
		TransferTo:   req.TransferTo,
		AddSignUsers: req.AddSignUsers,
	})
	if err != nil {
		h.fail(c, "process_action", err, committed(inst))
		return
	}
	ok(c, http.StatusOK, inst)
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	var req CommentRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = req.Comment
	}

	inst, err := h.services.Engine.Cancel(c.Request.Context(), c.Param("id"), actorOf(c), reason)
	if err != nil {
		h.fail(c, "cancel_instance", err, nil)
		return
	}
	ok(c, http.StatusOK, inst)
}

// ListRecords handles GET /api/v1/instances/:id/records
func (h *Handlers) ListRecords(c *gin.Context) {
	recs, err := h.services.Engine.Records(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "list_records", err, nil)
		return
	}
	if recs == nil {
		recs = []*entity.ApprovalRecord{}
	}
	ok(c, http.StatusOK, recs)
}

// GetSLA handles GET /api/v1/instances/:id/sla
func (h *Handlers) GetSLA(c *gin.Context) {
	sla, err := h.services.Monitor.SLA(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_sla", err, nil)
		return
	}
	ok(c, http.StatusOK, sla)
}

// ReplayInstance handles GET /api/v1/instances/:id/replay
func (h *Handlers) ReplayInstance(c *gin.Context) {
	res, err := h.services.Engine.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "replay_instance", err, nil)
		return
	}
	ok(c, http.StatusOK, res)
}

// ReprocessTimeout handles POST /api/v1/instances/:id/reprocess-timeout
func (h *Handlers) ReprocessTimeout(c *gin.Context) {
	var req CommentRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}

	inst, err := h.services.Engine.ReprocessTimeout(c.Request.Context(), c.Param("id"), actorOf(c), req.Comment)
	if err != nil {
		h.fail(c, "reprocess_timeout", err, committed(inst))
		return
	}
	ok(c, http.StatusOK, inst)
}

// RemediateHold handles POST /api/v1/instances/:id/remediate
func (h *Handlers) RemediateHold(c *gin.Context) {
	var req RemediateRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}

	inst, err := h.services.Engine.RemediateHold(c.Request.Context(), workflow.RemediateRequest{
		InstanceID: c.Param("id"),
		Operator:   actorOf(c),
		Approvers:  req.Approvers,
		TargetNode: req.TargetNode,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, "remediate_hold", err, committed(inst))
		return
	}
	ok(c, http.StatusOK, inst)
}

// committed returns the instance an error response should still carry, if any
func committed(inst *entity.ApprovalInstance) interface{} {
	if inst == nil {
		return nil
	}
	return inst
}
