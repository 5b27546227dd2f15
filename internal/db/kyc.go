package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xtrntr/p2pex/internal/models"
)

const kycColumns = "id, user_id, level, status, document_type, document_number, first_name, last_name, date_of_birth, nationality, address, city, postal_code, country, rejection_reason, verified_at, expires_at, created_at, updated_at"

func scanKYC(row interface{ Scan(...any) error }) (models.KYC, error) {
	var k models.KYC
	err := row.Scan(&k.ID, &k.UserID, &k.Level, &k.Status, &k.DocumentType, &k.DocumentNumber,
		&k.FirstName, &k.LastName, &k.DateOfBirth, &k.Nationality, &k.Address, &k.City,
		&k.PostalCode, &k.Country, &k.RejectionReason, &k.VerifiedAt, &k.ExpiresAt,
		&k.CreatedAt, &k.UpdatedAt)
	return k, err
}

// CreateKYC inserts a verification record
func (db *DB) CreateKYC(ctx context.Context, k *models.KYC) (models.KYC, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO kyc_records (user_id, level, status, document_type, document_number, first_name,
		                          last_name, date_of_birth, nationality, address, city, postal_code, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+kycColumns,
		k.UserID, k.Level, k.Status, k.DocumentType, k.DocumentNumber, k.FirstName,
		k.LastName, k.DateOfBirth, k.Nationality, k.Address, k.City, k.PostalCode, k.Country)
	created, err := scanKYC(row)
	if err != nil {
		return models.KYC{}, fmt.Errorf("failed to create kyc record: %w", err)
	}
	return created, nil
}

// GetKYCForUpdate locks a verification record row.
func (db *DB) GetKYCForUpdate(ctx context.Context, id int) (models.KYC, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+kycColumns+" FROM kyc_records WHERE id = $1 FOR UPDATE", id)
	k, err := scanKYC(row)
	if err != nil {
		return models.KYC{}, notFound(err, "kyc record %d not found", id)
	}
	return k, nil
}

// GetLatestKYCByUser returns the user's most recent record, nil if none.
func (db *DB) GetLatestKYCByUser(ctx context.Context, userID int) (*models.KYC, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+kycColumns+" FROM kyc_records WHERE user_id = $1 ORDER BY id DESC LIMIT 1", userID)
	k, err := scanKYC(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kyc record: %w", err)
	}
	return &k, nil
}

// GetLatestApprovedKYC returns the user's most recent approved record, nil
// if none.
func (db *DB) GetLatestApprovedKYC(ctx context.Context, userID int) (*models.KYC, error) {
	row := db.q(ctx).QueryRow(ctx,
		`SELECT `+kycColumns+` FROM kyc_records
		 WHERE user_id = $1 AND status = 'approved'
		 ORDER BY id DESC LIMIT 1`, userID)
	k, err := scanKYC(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approved kyc record: %w", err)
	}
	return &k, nil
}

// UpdateKYCReview writes an admin decision.
func (db *DB) UpdateKYCReview(ctx context.Context, k models.KYC) error {
	tag, err := db.q(ctx).Exec(ctx,
		`UPDATE kyc_records SET status = $1, level = $2, rejection_reason = $3,
		        verified_at = $4, expires_at = $5, updated_at = NOW()
		 WHERE id = $6`,
		k.Status, k.Level, k.RejectionReason, k.VerifiedAt, k.ExpiresAt, k.ID)
	if err != nil {
		return fmt.Errorf("failed to update kyc review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kyc record %d not found", k.ID)
	}
	return nil
}

// ListPendingKYC returns the admin review queue, oldest first.
func (db *DB) ListPendingKYC(ctx context.Context) ([]models.KYC, error) {
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+kycColumns+" FROM kyc_records WHERE status = 'pending' ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list pending kyc records: %w", err)
	}
	defer rows.Close()

	var records []models.KYC
	for rows.Next() {
		k, err := scanKYC(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kyc record: %w", err)
		}
		records = append(records, k)
	}
	return records, rows.Err()
}
