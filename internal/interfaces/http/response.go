package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Response represents a standard JSON response
type Response struct {
	Success    bool               `json:"success"`
	Data       interface{}        `json:"data,omitempty"`
	Error      string             `json:"error,omitempty"`
	Code       entity.ErrorCode   `json:"code,omitempty"`
	NodeID     entity.NodeID      `json:"node_id,omitempty"`
	Violations []entity.Violation `json:"violations,omitempty"`
}

// PageResponse wraps one page of a listing
type PageResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

var statusByCode = map[entity.ErrorCode]int{
	entity.CodeValidation:          http.StatusBadRequest,
	entity.CodeInvalidTemplate:     http.StatusUnprocessableEntity,
	entity.CodeTemplateInUse:       http.StatusConflict,
	entity.CodeNotFound:            http.StatusNotFound,
	entity.CodeAlreadyTerminal:     http.StatusConflict,
	entity.CodeNotAuthorized:       http.StatusForbidden,
	entity.CodeActionNotAllowed:    http.StatusForbidden,
	entity.CodeUnresolvedApprover:  http.StatusConflict,
	entity.CodeNoMatchingCondition: http.StatusConflict,
}

// statusFor maps a domain error to its HTTP status; anything else is a 500
func statusFor(err error) int {
	if status, ok := statusByCode[entity.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// writeError renders err. data travels with errors that still committed state, such as holds.
func writeError(c *gin.Context, err error, data interface{}) {
	status := statusFor(err)
	resp := Response{Success: false, Data: data, Code: entity.CodeOf(err)}

	var de *entity.Error
	if errors.As(err, &de) {
		resp.Error = de.Error()
		resp.NodeID = de.NodeID
		resp.Violations = de.Violations
	} else {
		resp.Error = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}
