package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/p2pex/internal/models"
)

const currencyColumns = "id, name, symbol, is_active, min_order_amount, max_order_amount, current_price, trading_fee, created_at, updated_at"

func scanCurrency(row interface{ Scan(...any) error }) (models.Currency, error) {
	var c models.Currency
	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.IsActive, &c.MinOrderAmount,
		&c.MaxOrderAmount, &c.CurrentPrice, &c.TradingFee, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCurrency inserts a new currency
func (db *DB) CreateCurrency(ctx context.Context, c *models.Currency) (models.Currency, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO currencies (name, symbol, is_active, min_order_amount, max_order_amount, current_price, trading_fee)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+currencyColumns,
		c.Name, c.Symbol, c.IsActive, c.MinOrderAmount, c.MaxOrderAmount, c.CurrentPrice, c.TradingFee)
	created, err := scanCurrency(row)
	if err != nil {
		return models.Currency{}, fmt.Errorf("failed to create currency: %w", err)
	}
	return created, nil
}

// GetCurrency retrieves a currency by id
func (db *DB) GetCurrency(ctx context.Context, id int) (models.Currency, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+currencyColumns+" FROM currencies WHERE id = $1", id)
	c, err := scanCurrency(row)
	if err != nil {
		return models.Currency{}, notFound(err, "currency %d not found", id)
	}
	return c, nil
}

// ListActiveCurrencies retrieves all active currencies
func (db *DB) ListActiveCurrencies(ctx context.Context) ([]models.Currency, error) {
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+currencyColumns+" FROM currencies WHERE is_active ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	defer rows.Close()

	var currencies []models.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}
