package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/p2pex/internal/models"
)

const orderColumns = "id, user_id, agent_id, currency_id, amount, price, total_value, type, status, description, created_at, updated_at"

func scanOrder(row interface{ Scan(...any) error }) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.AgentID, &o.CurrencyID, &o.Amount, &o.Price,
		&o.TotalValue, &o.Type, &o.Status, &o.Description, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts a new order
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) (models.Order, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO orders (user_id, currency_id, amount, price, total_value, type, status, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+orderColumns,
		o.UserID, o.CurrencyID, o.Amount, o.Price, o.TotalValue, o.Type, o.Status, o.Description)
	created, err := scanOrder(row)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrder retrieves an order by id
func (db *DB) GetOrder(ctx context.Context, id int) (models.Order, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	o, err := scanOrder(row)
	if err != nil {
		return models.Order{}, notFound(err, "order %d not found", id)
	}
	return o, nil
}

// GetOrderForUpdate locks the order row so state transitions observe the
// exact predecessor state at commit time.
func (db *DB) GetOrderForUpdate(ctx context.Context, id int) (models.Order, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	o, err := scanOrder(row)
	if err != nil {
		return models.Order{}, notFound(err, "order %d not found", id)
	}
	return o, nil
}

// UpdateOrderStatus updates an order's status
func (db *DB) UpdateOrderStatus(ctx context.Context, id int, status string) error {
	tag, err := db.q(ctx).Exec(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", id)
	}
	return nil
}

// SetOrderAgent assigns the matching agent and advances the status in one
// statement.
func (db *DB) SetOrderAgent(ctx context.Context, id, agentID int, status string) error {
	tag, err := db.q(ctx).Exec(ctx,
		"UPDATE orders SET agent_id = $1, status = $2, updated_at = NOW() WHERE id = $3",
		agentID, status, id)
	if err != nil {
		return fmt.Errorf("failed to set order agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", id)
	}
	return nil
}

// ListUserOrders retrieves a user's orders, optionally filtered by status
// and type.
func (db *DB) ListUserOrders(ctx context.Context, userID int, status, orderType string) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE user_id = $1"
	args := []any{userID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if orderType != "" {
		args = append(args, orderType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListPendingOrders retrieves all pending orders, oldest first, for the
// agent matching queue.
func (db *DB) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.q(ctx).Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = 'pending' ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
