package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// InstanceRepository implements port.InstanceRepository with optimistic versioning
type InstanceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `id, instance_code, template_id, template_name, template_version, nodes, title,
	category, business_type, applicant, applicant_department, form_data, status, priority,
	current_node, current_approvers, round, execution_path, total_nodes, completed_nodes,
	create_time, update_time, deadline, actual_duration_ns, hold, version`

// instanceRow is the column form of an instance
type instanceRow struct {
	nodes, formData, approvers, round, path string
	hold                                    sql.NullString
	deadline                                sql.NullString
	duration                                sql.NullInt64
}

func encodeInstance(inst *entity.ApprovalInstance) (*instanceRow, error) {
	row := &instanceRow{deadline: formatTimePtr(inst.Deadline)}
	var err error
	if row.nodes, err = toJSON(inst.Nodes); err != nil {
		return nil, fmt.Errorf("failed to encode nodes: %w", err)
	}
	if row.formData, err = toJSON(inst.FormData); err != nil {
		return nil, fmt.Errorf("failed to encode form data: %w", err)
	}
	approvers := inst.CurrentApprovers
	if approvers == nil {
		approvers = []string{}
	}
	if row.approvers, err = toJSON(approvers); err != nil {
		return nil, fmt.Errorf("failed to encode approvers: %w", err)
	}
	if row.round, err = toJSON(inst.Round); err != nil {
		return nil, fmt.Errorf("failed to encode round: %w", err)
	}
	if row.path, err = toJSON(inst.ExecutionPath); err != nil {
		return nil, fmt.Errorf("failed to encode execution path: %w", err)
	}
	if inst.Hold != nil {
		h, err := toJSON(inst.Hold)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hold: %w", err)
		}
		row.hold = sql.NullString{String: h, Valid: true}
	}
	if inst.ActualDuration != nil {
		row.duration = sql.NullInt64{Int64: int64(*inst.ActualDuration), Valid: true}
	}
	return row, nil
}

func (r *InstanceRepository) Create(ctx context.Context, inst *entity.ApprovalInstance) error {
	row, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	if inst.Version == 0 {
		inst.Version = 1
	}

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO approval_instances (`+instanceColumns+`, round_approvals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.InstanceCode, inst.TemplateID, inst.TemplateName, inst.TemplateVersion, row.nodes, inst.Title,
		inst.Category, inst.BusinessType, inst.Applicant, inst.ApplicantDepartment, row.formData, inst.Status, inst.Priority,
		inst.CurrentNode, row.approvers, row.round, row.path, inst.TotalNodes, inst.CompletedNodes,
		formatTime(inst.CreateTime), formatTime(inst.UpdateTime), row.deadline, row.duration, row.hold, inst.Version,
		len(inst.Round.Approvals),
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM approval_instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// Update writes the instance when the stored version still equals expectedVersion
func (r *InstanceRepository) Update(ctx context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error {
	row, err := encodeInstance(inst)
	if err != nil {
		return err
	}

	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE approval_instances SET
			title = ?, form_data = ?, status = ?, priority = ?, current_node = ?, current_approvers = ?,
			round = ?, execution_path = ?, total_nodes = ?, completed_nodes = ?, update_time = ?,
			deadline = ?, actual_duration_ns = ?, hold = ?, round_approvals = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		inst.Title, row.formData, inst.Status, inst.Priority, inst.CurrentNode, row.approvers,
		row.round, row.path, inst.TotalNodes, inst.CompletedNodes, formatTime(inst.UpdateTime),
		row.deadline, row.duration, row.hold, len(inst.Round.Approvals),
		inst.ID, expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_instances WHERE id = ?`, inst.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check instance %s: %w", inst.ID, err)
		}
		if exists == 0 {
			return fmt.Errorf("instance %s not found", inst.ID)
		}
		return port.ErrVersionConflict
	}
	inst.Version = expectedVersion + 1
	return nil
}

func (r *InstanceRepository) List(ctx context.Context, f port.InstanceFilter) ([]*entity.ApprovalInstance, int, error) {
	clause, args := instanceWhere(f)

	var total int
	if err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_instances`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count instances: %w", err)
	}

	query := `SELECT ` + instanceColumns + ` FROM approval_instances` + clause + orderBy(f.SortBy, f.SortDesc)
	query, args = withPage(query, args, f.Page, f.PageSize)
	list, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListOverdue filters on round_approvals, which Create and Update keep equal to len(Round.Approvals)
func (r *InstanceRepository) ListOverdue(ctx context.Context, now time.Time, after port.OverdueCursor, limit int) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances
		WHERE status = ? AND hold IS NULL AND round_approvals = 0 AND deadline IS NOT NULL AND deadline < ?`
	args := []interface{}{entity.StatusPending, formatTime(now)}
	if after.ID != "" {
		cursor := formatTime(after.Deadline)
		query += ` AND (deadline > ? OR (deadline = ? AND id > ?))`
		args = append(args, cursor, cursor, after.ID)
	}
	query += ` ORDER BY deadline, id`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *InstanceRepository) ListCreatedBetween(ctx context.Context, from, to time.Time, category string) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE create_time >= ? AND create_time < ?`
	args := []interface{}{formatTime(from), formatTime(to)}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	return r.query(ctx, query+" ORDER BY create_time, id", args...)
}

func (r *InstanceRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	var n int
	err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_instances WHERE template_id = ?`, templateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances of template %s: %w", templateID, err)
	}
	return n, nil
}

func (r *InstanceRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalInstance, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query instances", zap.Error(err))
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	out := []*entity.ApprovalInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func instanceWhere(f port.InstanceFilter) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, vals ...interface{}) {
		where = append(where, cond)
		args = append(args, vals...)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.BusinessType != "" {
		add("business_type = ?", f.BusinessType)
	}
	if f.Applicant != "" {
		add("applicant = ?", f.Applicant)
	}
	if f.Approver != "" {
		add("EXISTS (SELECT 1 FROM json_each(approval_instances.current_approvers) WHERE json_each.value = ?)", f.Approver)
	}
	if f.TemplateID != "" {
		add("template_id = ?", f.TemplateID)
	}
	if f.From != nil {
		add("create_time >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		add("create_time < ?", formatTime(*f.To))
	}
	if f.Keyword != "" {
		kw := "%" + f.Keyword + "%"
		add("(title LIKE ? OR instance_code LIKE ?)", kw, kw)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// orderBy sorts by the requested key with id as tiebreak; missing deadlines sort last either way
func orderBy(by string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch by {
	case "deadline":
		return " ORDER BY deadline IS NULL, deadline " + dir + ", id " + dir
	case "priority":
		return ` ORDER BY CASE priority WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2 WHEN 'urgent' THEN 3 ELSE 1 END ` + dir + ", id " + dir
	}
	return " ORDER BY create_time " + dir + ", id " + dir
}

func scanInstance(s scanner) (*entity.ApprovalInstance, error) {
	var (
		inst                 entity.ApprovalInstance
		row                  instanceRow
		createTime, updateAt string
	)
	if err := s.Scan(
		&inst.ID, &inst.InstanceCode, &inst.TemplateID, &inst.TemplateName, &inst.TemplateVersion, &row.nodes, &inst.Title,
		&inst.Category, &inst.BusinessType, &inst.Applicant, &inst.ApplicantDepartment, &row.formData, &inst.Status, &inst.Priority,
		&inst.CurrentNode, &row.approvers, &row.round, &row.path, &inst.TotalNodes, &inst.CompletedNodes,
		&createTime, &updateAt, &row.deadline, &row.duration, &row.hold, &inst.Version,
	); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name string
		src  string
		dst  any
	}{
		{"nodes", row.nodes, &inst.Nodes},
		{"form data", row.formData, &inst.FormData},
		{"approvers", row.approvers, &inst.CurrentApprovers},
		{"round", row.round, &inst.Round},
		{"execution path", row.path, &inst.ExecutionPath},
	} {
		if err := fromJSON(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s of %s: %w", f.name, inst.ID, err)
		}
	}
	if row.hold.Valid {
		inst.Hold = &entity.Hold{}
		if err := fromJSON(row.hold.String, inst.Hold); err != nil {
			return nil, fmt.Errorf("failed to decode hold of %s: %w", inst.ID, err)
		}
	}
	if row.duration.Valid {
		d := time.Duration(row.duration.Int64)
		inst.ActualDuration = &d
	}

	var err error
	if inst.CreateTime, err = parseTime(createTime); err != nil {
		return nil, err
	}
	if inst.UpdateTime, err = parseTime(updateAt); err != nil {
		return nil, err
	}
	if inst.Deadline, err = parseTimePtr(row.deadline); err != nil {
		return nil, err
	}
	return &inst, nil
}
