package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xtrntr/p2pex/internal/models"
)

const txColumns = "id, user_id, wallet_id, order_id, type, amount, fee, status, tx_hash, from_address, to_address, confirmations, required_confirmations, metadata, created_at, updated_at"

func scanTransaction(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &t.OrderID, &t.Type, &t.Amount, &t.Fee,
		&t.Status, &t.TxHash, &t.FromAddress, &t.ToAddress, &t.Confirmations,
		&t.RequiredConfirmations, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateTransaction appends a ledger entry.
func (db *DB) CreateTransaction(ctx context.Context, tx *models.Transaction) (models.Transaction, error) {
	meta := tx.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO transactions (user_id, wallet_id, order_id, type, amount, fee, status,
		                           tx_hash, from_address, to_address, confirmations, required_confirmations, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+txColumns,
		tx.UserID, tx.WalletID, tx.OrderID, tx.Type, tx.Amount, tx.Fee, tx.Status,
		tx.TxHash, tx.FromAddress, tx.ToAddress, tx.Confirmations, tx.RequiredConfirmations, meta)
	created, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

// GetTransaction retrieves one ledger entry.
func (db *DB) GetTransaction(ctx context.Context, id int) (models.Transaction, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1", id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction %d not found", id)
	}
	return t, nil
}

// GetTransactionForUpdate locks one ledger entry row.
func (db *DB) GetTransactionForUpdate(ctx context.Context, id int) (models.Transaction, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1 FOR UPDATE", id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction %d not found", id)
	}
	return t, nil
}

// UpdateTransactionStatus advances a pending entry's status and confirmation
// count. Amounts are never touched; the journal is append-only.
func (db *DB) UpdateTransactionStatus(ctx context.Context, id int, status string, confirmations int) error {
	tag, err := db.q(ctx).Exec(ctx,
		"UPDATE transactions SET status = $1, confirmations = $2, updated_at = NOW() WHERE id = $3",
		status, confirmations, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d not found", id)
	}
	return nil
}

// ListUserTransactions retrieves a user's transaction history, newest first,
// paginated.
func (db *DB) ListUserTransactions(ctx context.Context, userID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+txColumns+` FROM transactions WHERE user_id = $1
		 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// GetSettledTradeByOrder returns the order's original trade entry, skipping
// compensating reversal entries.
func (db *DB) GetSettledTradeByOrder(ctx context.Context, orderID int) (*models.Transaction, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+txColumns+` FROM transactions
		 WHERE order_id = $1 AND type = 'trade' AND status = 'confirmed'
		   AND NOT (metadata ? 'reversal_of')
		 ORDER BY id LIMIT 1`,
		orderID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade for order %d: %w", orderID, err)
	}
	return &t, nil
}
