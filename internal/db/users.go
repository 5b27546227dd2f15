package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/models"
)

const userColumns = "id, email, username, password_hash, first_name, last_name, role, is_active, is_verified, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, u *models.User) (models.User, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash, first_name, last_name, role, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+userColumns,
		u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.IsActive)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apperr.New(apperr.KindConflict, "email or username already registered")
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, notFound(err, "user %s not found", email)
	}
	return u, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, id int) (models.User, error) {
	row := db.q(ctx).QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, notFound(err, "user %d not found", id)
	}
	return u, nil
}

// GetOrCreateTreasuryUser returns the platform account that accrues trading
// fees, creating it on first boot. The account is inactive so it can never
// authenticate.
func (db *DB) GetOrCreateTreasuryUser(ctx context.Context) (models.User, error) {
	row := db.q(ctx).QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash, first_name, last_name, role, is_active)
		 VALUES ('treasury@p2pex.internal', 'treasury', '', 'Platform', 'Treasury', 'admin', FALSE)
		 ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		 RETURNING `+userColumns)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to ensure treasury user: %w", err)
	}
	return u, nil
}

// GetUserByID is an alias kept for the auth store interface.
func (db *DB) GetUserByID(ctx context.Context, id int) (models.User, error) {
	return db.GetUser(ctx, id)
}
