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

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `id, name, description, category, business_type, is_active, version,
	nodes, form_schema, creator, create_time, update_time`

func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.ApprovalTemplate) error {
	nodes, err := toJSON(tpl.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	schema, err := toJSON(tpl.FormSchema)
	if err != nil {
		return fmt.Errorf("failed to encode form schema: %w", err)
	}

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO approval_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.Name, tpl.Description, tpl.Category, tpl.BusinessType, tpl.IsActive, tpl.Version,
		nodes, schema, tpl.Creator, formatTime(tpl.CreateTime), formatTime(tpl.UpdateTime),
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("id", tpl.ID), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalTemplate, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM approval_templates WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

func (r *TemplateRepository) Update(ctx context.Context, tpl *entity.ApprovalTemplate) error {
	nodes, err := toJSON(tpl.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	schema, err := toJSON(tpl.FormSchema)
	if err != nil {
		return fmt.Errorf("failed to encode form schema: %w", err)
	}

	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE approval_templates
		SET name = ?, description = ?, category = ?, business_type = ?, is_active = ?, version = ?,
			nodes = ?, form_schema = ?, update_time = ?
		WHERE id = ?`,
		tpl.Name, tpl.Description, tpl.Category, tpl.BusinessType, tpl.IsActive, tpl.Version,
		nodes, schema, formatTime(tpl.UpdateTime), tpl.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.String("id", tpl.ID), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireRow(res, "template", tpl.ID)
}

func (r *TemplateRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE approval_templates SET is_active = ?, update_time = ? WHERE id = ?`,
		active, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to set template active: %w", err)
	}
	return requireRow(res, "template", id)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM approval_templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context, f port.TemplateFilter) ([]*entity.ApprovalTemplate, int, error) {
	var where []string
	var args []interface{}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.BusinessType != "" {
		where = append(where, "business_type = ?")
		args = append(args, f.BusinessType)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}
	if f.Keyword != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		kw := "%" + f.Keyword + "%"
		args = append(args, kw, kw)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_templates`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	query := `SELECT ` + templateColumns + ` FROM approval_templates` + clause + ` ORDER BY create_time DESC, id`
	query, args = withPage(query, args, f.Page, f.PageSize)
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := []*entity.ApprovalTemplate{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, total, rows.Err()
}

func scanTemplate(s scanner) (*entity.ApprovalTemplate, error) {
	var (
		tpl                  entity.ApprovalTemplate
		nodes, schema        string
		createTime, updateAt string
	)
	if err := s.Scan(
		&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Category, &tpl.BusinessType, &tpl.IsActive, &tpl.Version,
		&nodes, &schema, &tpl.Creator, &createTime, &updateAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSON(nodes, &tpl.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes of %s: %w", tpl.ID, err)
	}
	if err := fromJSON(schema, &tpl.FormSchema); err != nil {
		return nil, fmt.Errorf("failed to decode form schema of %s: %w", tpl.ID, err)
	}
	var err error
	if tpl.CreateTime, err = parseTime(createTime); err != nil {
		return nil, err
	}
	if tpl.UpdateTime, err = parseTime(updateAt); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}

// withPage appends LIMIT/OFFSET when size is positive
func withPage(query string, args []interface{}, page, size int) (string, []interface{}) {
	if size <= 0 {
		return query, args
	}
	if page < 1 {
		page = 1
	}
	return query + " LIMIT ? OFFSET ?", append(args, size, (page-1)*size)
}
