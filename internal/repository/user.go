package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/communa/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type userRepository struct {
	db *sqlx.DB
}

func newUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{
		db: db,
	}
}

// GetByCredentialKey resolves a login key that may be either a username or
// an email. The caller maps ErrNotFound into the same generic credentials
// failure as a password mismatch.
func (r *userRepository) GetByCredentialKey(ctx context.Context, usernameOrEmail string) (*domain.User, error) {
	const query = `
	SELECT id, username, email, password_hash, avatar, created_at, updated_at, deleted_at
	FROM user
	WHERE (username = ? OR email = ?) AND deleted_at IS NULL;
	`
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, usernameOrEmail, usernameOrEmail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select from user by credential key failed: %w", err)
	}

	return &user, nil
}

func (r *userRepository) GetOneByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const query = `
	SELECT id, username, email, password_hash, avatar, created_at, updated_at, deleted_at
	FROM user
	WHERE id = uuid_to_bin(?) AND deleted_at IS NULL;
	`
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select from user by id failed: %w", err)
	}
	return &user, nil
}
