package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zenteach/internal/models"
)

// CreateOrUpdateUser upserts an account keyed by username.
func (db *DB) CreateOrUpdateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	if u.Role == "" {
		u.Role = models.RoleClient
	}

	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, role, is_active, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Role, true, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if u.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			u.ID = id
		}
	}
	return nil
}

// GetUserByID returns an account by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	var firstName, lastName sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, first_name, last_name, role, is_active, registered_at
		FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Username, &u.Email, &firstName, &lastName, &u.Role, &u.IsActive, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if firstName.Valid {
		u.FirstName = firstName.String
	}
	if lastName.Valid {
		u.LastName = lastName.String
	}
	return &u, nil
}

// GetUserByUsername returns an account by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	var firstName, lastName sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, first_name, last_name, role, is_active, registered_at
		FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.Email, &firstName, &lastName, &u.Role, &u.IsActive, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if firstName.Valid {
		u.FirstName = firstName.String
	}
	if lastName.Valid {
		u.LastName = lastName.String
	}
	return &u, nil
}
