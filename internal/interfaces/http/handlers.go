package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if h.services.Health != nil {
		if err := h.services.Health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp})
			return
		}
	}
	ok(c, http.StatusOK, resp)
}

// fail logs unexpected errors and writes the error response
func (h *Handlers) fail(c *gin.Context, op string, err error, data interface{}) {
	if entity.CodeOf(err) == "" {
		h.logger.Error("Request failed", "operation", op, "path", c.Request.URL.Path, "error", err)
	}
	writeError(c, err, data)
}

// bindJSON decodes the body; an empty body leaves dst untouched
func bindJSON(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return entity.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps or plain dates (midnight UTC)
func parseTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, entity.NewValidationError("%s: expected RFC 3339 time or YYYY-MM-DD, got %q", field, value)
}

func attachmentName(from, to time.Time) string {
	return fmt.Sprintf("approval-statistics-%s-%s.xlsx", from.Format("20060102"), to.Format("20060102"))
}
