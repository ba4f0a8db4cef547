package http

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/application/statistics"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// StatisticsQuery represents query parameters for statistics
type StatisticsQuery struct {
	From     string `form:"from"`
	To       string `form:"to"`
	Category string `form:"category"`
}

func (h *Handlers) statisticsReport(c *gin.Context) (*statistics.Report, error) {
	var q StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, entity.NewValidationError("invalid query parameters: %v", err)
	}
	query := statistics.Query{Category: q.Category}
	from, err := parseTime("from", q.From)
	if err != nil {
		return nil, err
	}
	to, err := parseTime("to", q.To)
	if err != nil {
		return nil, err
	}
	if from != nil {
		query.From = *from
	}
	if to != nil {
		query.To = *to
	}
	return h.services.Statistics.Generate(c.Request.Context(), query)
}

// GetStatistics handles GET /api/v1/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	report, err := h.statisticsReport(c)
	if err != nil {
		h.fail(c, "get_statistics", err, nil)
		return
	}
	ok(c, http.StatusOK, report)
}

// ExportStatistics handles GET /api/v1/statistics/export
func (h *Handlers) ExportStatistics(c *gin.Context) {
	report, err := h.statisticsReport(c)
	if err != nil {
		h.fail(c, "export_statistics", err, nil)
		return
	}

	var buf bytes.Buffer
	if err := h.services.Exporter.Write(&buf, report); err != nil {
		h.fail(c, "export_statistics", err, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+attachmentName(report.From, report.To)+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
