package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dicampus-admin/internal/models"
)

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// UserRepository reads operator accounts from the users table.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, active, last_login, created_at, updated_at FROM users WHERE lower(email) = lower($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// StaticUserRepository serves a single configured operator account.
type StaticUserRepository struct {
	user *models.User
}

// NewStaticUserRepository builds the repository; an empty email or hash
// yields a repository that matches nobody.
func NewStaticUserRepository(email, passwordHash, name string) *StaticUserRepository {
	if strings.TrimSpace(email) == "" || passwordHash == "" {
		return &StaticUserRepository{}
	}
	return &StaticUserRepository{user: &models.User{
		ID:           "admin",
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		FullName:     name,
		Active:       true,
	}}
}

// FindByEmail returns the configured account when the email matches.
func (r *StaticUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if r.user == nil || !strings.EqualFold(r.user.Email, strings.TrimSpace(email)) {
		return nil, ErrUserNotFound
	}
	user := *r.user
	return &user, nil
}

// UpdateLastLogin records the time in memory.
func (r *StaticUserRepository) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if r.user == nil || r.user.ID != id {
		return ErrUserNotFound
	}
	r.user.LastLogin = &ts
	return nil
}
