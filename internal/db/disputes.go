package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/models"
)

const disputeColumns = "id, order_id, initiator_id, respondent_id, reason, description, status, resolution, resolved_by, resolved_at, created_at, updated_at"

func scanDispute(row interface{ Scan(...any) error }) (models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.InitiatorID, &d.RespondentID, &d.Reason,
		&d.Description, &d.Status, &d.Resolution, &d.ResolvedBy, &d.ResolvedAt,
		&d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDispute inserts a new dispute. A partial unique index enforces one
// active dispute per order even under concurrent opens.
func (db *DB) CreateDispute(ctx context.Context, d *models.Dispute) (models.Dispute, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO disputes (order_id, initiator_id, respondent_id, reason, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+disputeColumns,
		d.OrderID, d.InitiatorID, d.RespondentID, d.Reason, d.Description, d.Status)
	created, err := scanDispute(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Dispute{}, apperr.New(apperr.KindConflict,
				"order %d already has an active dispute", d.OrderID)
		}
		return models.Dispute{}, fmt.Errorf("failed to create dispute: %w", err)
	}
	return created, nil
}

// GetDispute retrieves a dispute by id
func (db *DB) GetDispute(ctx context.Context, id int) (models.Dispute, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+disputeColumns+" FROM disputes WHERE id = $1", id)
	d, err := scanDispute(row)
	if err != nil {
		return models.Dispute{}, notFound(err, "dispute %d not found", id)
	}
	return d, nil
}

// GetDisputeForUpdate locks the dispute row.
func (db *DB) GetDisputeForUpdate(ctx context.Context, id int) (models.Dispute, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+disputeColumns+" FROM disputes WHERE id = $1 FOR UPDATE", id)
	d, err := scanDispute(row)
	if err != nil {
		return models.Dispute{}, notFound(err, "dispute %d not found", id)
	}
	return d, nil
}

// UpdateDispute writes the mutable dispute fields.
func (db *DB) UpdateDispute(ctx context.Context, d models.Dispute) error {
	tag, err := db.q(ctx).Exec(ctx,
		`UPDATE disputes SET status = $1, resolution = $2, resolved_by = $3, resolved_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispute %d not found", d.ID)
	}
	return nil
}

// HasActiveDispute reports whether the order carries a non-closed dispute.
func (db *DB) HasActiveDispute(ctx context.Context, orderID int) (bool, error) {
	var exists bool
	err := db.q(ctx).QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM disputes WHERE order_id = $1 AND status <> 'closed')",
		orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active dispute: %w", err)
	}
	return exists, nil
}

// ListUserDisputes retrieves disputes the user initiated or responds to.
func (db *DB) ListUserDisputes(ctx context.Context, userID int) ([]models.Dispute, error) {
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+disputeColumns+` FROM disputes
		 WHERE initiator_id = $1 OR respondent_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()
	return collectDisputes(rows)
}

// ListDisputes retrieves all disputes, optionally filtered by status.
func (db *DB) ListDisputes(ctx context.Context, status string) ([]models.Dispute, error) {
	query := "SELECT " + disputeColumns + " FROM disputes"
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()
	return collectDisputes(rows)
}

func collectDisputes(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]models.Dispute, error) {
	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}
