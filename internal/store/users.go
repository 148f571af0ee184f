package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/playhive/backend/internal/models"
)

// Users manages user accounts.
type Users struct {
	db *sqlx.DB
}

// NewUsers creates the user store.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// GetByUsername returns the user with the given username, or nil.
func (s *Users) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, display_name, email, password_hash, is_active, created_at, last_active
		FROM users WHERE username = $1
	`, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetByID returns the user with the given ID, or nil.
func (s *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, username, display_name, email, password_hash, is_active, created_at, last_active
		FROM users WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user and returns its ID. The username must be free.
func (s *Users) Create(ctx context.Context, username, displayName, email, passwordHash string) (string, error) {
	id := "USER_" + generateID(10)
	if displayName == "" {
		displayName = username
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, true, NOW())
	`, id, username, displayName, email, passwordHash)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// TouchLastActive stamps the user's last activity time.
func (s *Users) TouchLastActive(ctx context.Context, id string) {
	s.db.ExecContext(ctx, `UPDATE users SET last_active = NOW() WHERE id = $1`, id)
}
