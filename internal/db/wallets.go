package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/models"
)

const walletColumns = "id, user_id, currency_id, balance, frozen_balance, address, is_active, created_at, updated_at"

func scanWallet(row interface{ Scan(...any) error }) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.CurrencyID, &w.Balance, &w.FrozenBalance,
		&w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// GetOrCreateWallet returns the user's wallet for a currency, creating it
// lazily on first use.
func (db *DB) GetOrCreateWallet(ctx context.Context, userID, currencyID int) (models.Wallet, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO wallets (user_id, currency_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, currency_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING `+walletColumns,
		userID, currencyID)
	w, err := scanWallet(row)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("failed to get or create wallet: %w", err)
	}
	return w, nil
}

// GetWalletForUpdate locks the wallet row for the life of the surrounding
// transaction. Concurrent operations on disjoint wallets do not block.
func (db *DB) GetWalletForUpdate(ctx context.Context, walletID int) (models.Wallet, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+walletColumns+" FROM wallets WHERE id = $1 FOR UPDATE", walletID)
	w, err := scanWallet(row)
	if err != nil {
		return models.Wallet{}, notFound(err, "wallet %d not found", walletID)
	}
	return w, nil
}

// GetWalletByUserCurrency retrieves a wallet without creating it.
func (db *DB) GetWalletByUserCurrency(ctx context.Context, userID, currencyID int) (models.Wallet, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+walletColumns+" FROM wallets WHERE user_id = $1 AND currency_id = $2",
		userID, currencyID)
	w, err := scanWallet(row)
	if err != nil {
		return models.Wallet{}, notFound(err, "wallet for user %d currency %d not found", userID, currencyID)
	}
	return w, nil
}

// UpdateWalletBalances writes both balances. Only the ledger calls this.
func (db *DB) UpdateWalletBalances(ctx context.Context, walletID int, balance, frozen decimal.Decimal) error {
	tag, err := db.q(ctx).Exec(ctx,
		"UPDATE wallets SET balance = $1, frozen_balance = $2, updated_at = NOW() WHERE id = $3",
		balance, frozen, walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %d not found", walletID)
	}
	return nil
}

// ListUserWallets retrieves all wallets for a user
func (db *DB) ListUserWallets(ctx context.Context, userID int) ([]models.Wallet, error) {
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+walletColumns+" FROM wallets WHERE user_id = $1 ORDER BY currency_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
