package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/domain/entity"
)

// RecordRepository implements port.RecordRepository. Rows are never updated or deleted.
type RecordRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

const recordColumns = `id, instance_id, node_id, approver, action, result, comment, attachments,
	transfer_to, add_sign_users, target_node, node_entered_at, create_time, refusal`

// maxInArgs keeps IN lists below sqlite's bound parameter limit
const maxInArgs = 500

func (r *RecordRepository) Create(ctx context.Context, rec *entity.ApprovalRecord) error {
	attachments, err := toJSON(nonNil(rec.Attachments))
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	addSign, err := toJSON(nonNil(rec.AddSignUsers))
	if err != nil {
		return fmt.Errorf("failed to encode add sign users: %w", err)
	}
	var entered sql.NullString
	if !rec.NodeEnteredAt.IsZero() {
		entered = sql.NullString{String: formatTime(rec.NodeEnteredAt), Valid: true}
	}

	_, err = r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO approval_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InstanceID, rec.NodeID, rec.Approver, rec.Action, rec.Result, rec.Comment, attachments,
		rec.TransferTo, addSign, rec.TargetNode, entered, formatTime(rec.CreateTime), rec.Refusal,
	)
	if err != nil {
		r.logger.Error("Failed to create record",
			zap.String("instance_id", rec.InstanceID),
			zap.String("action", string(rec.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (r *RecordRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalRecord, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM approval_records WHERE instance_id = ? ORDER BY seq`, instanceID)
}

func (r *RecordRepository) ListByInstances(ctx context.Context, instanceIDs []string) ([]*entity.ApprovalRecord, error) {
	out := []*entity.ApprovalRecord{}
	for start := 0; start < len(instanceIDs); start += maxInArgs {
		chunk := instanceIDs[start:min(start+maxInArgs, len(instanceIDs))]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		recs, err := r.query(ctx,
			`SELECT `+recordColumns+` FROM approval_records WHERE instance_id IN (`+placeholders+`) ORDER BY seq`, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (r *RecordRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRecord, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query records", zap.Error(err))
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	out := []*entity.ApprovalRecord{}
	for rows.Next() {
		var (
			rec                  entity.ApprovalRecord
			attachments, addSign string
			entered              sql.NullString
			created              string
		)
		if err := rows.Scan(
			&rec.ID, &rec.InstanceID, &rec.NodeID, &rec.Approver, &rec.Action, &rec.Result, &rec.Comment, &attachments,
			&rec.TransferTo, &addSign, &rec.TargetNode, &entered, &created, &rec.Refusal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := fromJSON(attachments, &rec.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of %s: %w", rec.ID, err)
		}
		if err := fromJSON(addSign, &rec.AddSignUsers); err != nil {
			return nil, fmt.Errorf("failed to decode add sign users of %s: %w", rec.ID, err)
		}
		if len(rec.Attachments) == 0 {
			rec.Attachments = nil
		}
		if len(rec.AddSignUsers) == 0 {
			rec.AddSignUsers = nil
		}
		if rec.NodeEnteredAt, err = parseTime(entered.String); err != nil {
			return nil, err
		}
		if rec.CreateTime, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ port.TemplateRepository = (*TemplateRepository)(nil)
	_ port.InstanceRepository = (*InstanceRepository)(nil)
	_ port.RecordRepository   = (*RecordRepository)(nil)
)
