package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"songbridge/internal/user/domain"
)

const userColumns = "id, external_user_id, username, created_at, updated_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM application_user WHERE id = $1", id)
	return scanUser(row)
}

// GetByExternalID returns the user for the provider subject id, or nil if not found.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM application_user WHERE external_user_id = $1", externalID)
	return scanUser(row)
}

// UpsertByExternalID creates the user for externalID or updates their username.
func (r *PostgresRepository) UpsertByExternalID(ctx context.Context, externalID, username string) (*domain.User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO application_user (id, external_user_id, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (external_user_id) DO UPDATE SET
			username = EXCLUDED.username,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		uuid.New().String(), externalID, username, now,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
