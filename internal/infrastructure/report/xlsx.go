package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/statistics"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// Sheet names of the statistics workbook
const (
	SheetSummary   = "Summary"
	SheetBreakdown = "Breakdown"
	SheetApprovers = "Approvers"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSXExporter renders statistics reports as Excel workbooks
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// Write renders r into w
func (e *XLSXExporter) Write(w io.Writer, r *statistics.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetBreakdown, SheetApprovers} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := e.fillSummary(f, r); err != nil {
		return err
	}
	if err := e.fillBreakdown(f, r, header); err != nil {
		return err
	}
	if err := e.fillApprovers(f, r, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	e.logger.Info("Statistics workbook exported",
		zap.Time("from", r.From),
		zap.Time("to", r.To),
		zap.Int("instances", r.Total),
		zap.Int("approvers", len(r.Approvers)))
	return nil
}

func (e *XLSXExporter) fillSummary(f *excelize.File, r *statistics.Report) error {
	category := r.Category
	if category == "" {
		category = "all"
	}
	rows := [][]interface{}{
		{"From", r.From.Format(time.RFC3339)},
		{"To", r.To.Format(time.RFC3339)},
		{"Category", category},
		{"Instances", r.Total},
		{"Completed", r.Completed},
		{"Average duration (hours)", hours(r.AverageDuration)},
		{"On-time rate", percent(r.OnTimeRate)},
		{"On-time / terminal", fmt.Sprintf("%d / %d", r.OnTime, r.Terminal)},
		{"On-time rate (limited nodes)", percent(r.OnTimeRateLimited)},
		{"On-time / terminal (limited nodes)", fmt.Sprintf("%d / %d", r.LimitedOnTime, r.LimitedTerminal)},
		{"Urgent", r.Urgent},
		{"Overdue", r.Overdue},
	}
	if err := setRows(f, SheetSummary, 1, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "A", "A", 36)
}

func (e *XLSXExporter) fillBreakdown(f *excelize.File, r *statistics.Report, header int) error {
	rows := [][]interface{}{{"Dimension", "Value", "Instances"}}
	for _, s := range entity.AllStatuses {
		rows = append(rows, []interface{}{"status", string(s), r.ByStatus[s]})
	}
	for _, k := range sortedKeys(r.ByBusinessType) {
		rows = append(rows, []interface{}{"business_type", string(k), r.ByBusinessType[k]})
	}
	for _, k := range sortedKeys(r.ByCategory) {
		rows = append(rows, []interface{}{"category", k, r.ByCategory[k]})
	}
	if err := setRows(f, SheetBreakdown, 1, rows); err != nil {
		return err
	}
	return f.SetCellStyle(SheetBreakdown, "A1", "C1", header)
}

func (e *XLSXExporter) fillApprovers(f *excelize.File, r *statistics.Report, header int) error {
	rows := [][]interface{}{{"Approver", "Decisions", "Approvals", "Rejections", "Average response (hours)"}}
	for _, a := range r.Approvers {
		rows = append(rows, []interface{}{a.Approver, a.Decisions, a.Approvals, a.Rejections, hours(a.AverageResponse)})
	}
	if err := setRows(f, SheetApprovers, 1, rows); err != nil {
		return err
	}
	return f.SetCellStyle(SheetApprovers, "A1", "E1", header)
}

func setRows(f *excelize.File, sheet string, first int, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, first+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to fill %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func hours(d time.Duration) float64 {
	return float64(d.Round(time.Minute)) / float64(time.Hour)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func percent(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *rate*100)
}
