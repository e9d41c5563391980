package db

import (
	"context"
	"database/sql"
	"fmt"

	"sms-relay-server/internal/models"
)

// UserRepository defines data access for the users table.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

type userRepository struct {
	database *Database
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(database *Database) UserRepository {
	return &userRepository{database: database}
}

const userColumns = `id, external_id, username, phone_number, first_name, last_name, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Username,
		&user.PhoneNumber,
		&user.FirstName,
		&user.LastName,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by internal id, nil if absent.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		u, err := scanUser(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get user by id: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

// GetByExternalID retrieves a user by external id, nil if absent.
func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id cannot be empty")
	}

	var user *models.User
	err := r.database.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
		u, err := scanUser(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get user by external id: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

// Upsert inserts the user, or on a conflicting external id updates the
// contact fields only. The internal id, admin flag and creation timestamp of
// an existing row are never overwritten.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ExternalID == "" {
		return fmt.Errorf("external id cannot be empty")
	}

	return r.database.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (external_id, username, phone_number, first_name, last_name, is_admin, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(external_id) DO UPDATE SET
				username = excluded.username,
				phone_number = excluded.phone_number,
				first_name = excluded.first_name,
				last_name = excluded.last_name`,
			user.ExternalID,
			user.Username,
			user.PhoneNumber,
			user.FirstName,
			user.LastName,
			user.IsAdmin,
			user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
}
