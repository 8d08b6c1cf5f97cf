package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"songbridge/internal/identity/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session refresh-token store that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByHash returns the token row with the given fingerprint, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*domain.SessionRefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, created_at, invalidated_at FROM session_refresh_token WHERE token_hash = $1",
		hash,
	)
	var t domain.SessionRefreshToken
	var invalidatedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &invalidatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if invalidatedAt.Valid {
		t.InvalidatedAt = &invalidatedAt.Time
	}
	return &t, nil
}

// CreateReplacingActive inserts t and invalidates any active token of the same
// user in one transaction, keeping the at-most-one-active invariant.
func (r *PostgresRepository) CreateReplacingActive(ctx context.Context, t *domain.SessionRefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE session_refresh_token SET invalidated_at = $1 WHERE user_id = $2 AND invalidated_at IS NULL",
		t.CreatedAt, t.UserID,
	); err != nil {
		return err
	}
	if err := insertToken(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

// Rotate atomically invalidates oldID and inserts newToken. The invalidation
// is conditional on the row still being active, so two callers racing on the
// same secret cannot both rotate it.
func (r *PostgresRepository) Rotate(ctx context.Context, oldID string, newToken *domain.SessionRefreshToken, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE session_refresh_token SET invalidated_at = $1 WHERE id = $2 AND invalidated_at IS NULL",
		at, oldID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRotated
	}
	if err := insertToken(ctx, tx, newToken); err != nil {
		return err
	}
	return tx.Commit()
}

func insertToken(ctx context.Context, tx *sql.Tx, t *domain.SessionRefreshToken) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO session_refresh_token (id, user_id, token_hash, created_at, invalidated_at) VALUES ($1, $2, $3, $4, NULL)",
		t.ID, t.UserID, t.TokenHash, t.CreatedAt,
	)
	return err
}
