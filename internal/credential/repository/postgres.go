package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"songbridge/internal/credential/domain"
)

const credentialColumns = "id, user_id, origin, access_token, refresh_token, invalid_token, expires_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential store that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find returns the credential for (userID, provider), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Find(ctx context.Context, userID string, provider domain.Provider) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM authorization_token WHERE user_id = $1 AND origin = $2",
		userID, string(provider),
	)
	return scanCredential(row)
}

// ListExpiringBefore returns non-invalid credentials with expires_at before cutoff,
// ordered by expiry so the soonest-expiring are refreshed first.
func (r *PostgresRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+credentialColumns+" FROM authorization_token WHERE expires_at < $1 AND NOT invalid_token ORDER BY expires_at",
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.EncryptedAccessToken, &c.EncryptedRefreshToken, &c.Invalid, &c.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// InTransaction runs fn inside one transaction; fn returning nil commits, any
// error rolls back.
func (r *PostgresRepository) InTransaction(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type postgresTx struct {
	tx *sql.Tx
}

// FindForUpdate locks the (userID, provider) row with SELECT ... FOR UPDATE and
// returns it, or nil if not found. The lock is held until the transaction ends.
func (t *postgresTx) FindForUpdate(ctx context.Context, userID string, provider domain.Provider) (*domain.Credential, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM authorization_token WHERE user_id = $1 AND origin = $2 FOR UPDATE",
		userID, string(provider),
	)
	return scanCredential(row)
}

// Upsert inserts the credential or replaces the token columns of the existing
// (user_id, origin) row.
func (t *postgresTx) Upsert(ctx context.Context, c *domain.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO authorization_token (id, user_id, origin, access_token, refresh_token, invalid_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, origin) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			invalid_token = EXCLUDED.invalid_token,
			expires_at = EXCLUDED.expires_at`,
		c.ID, c.UserID, string(c.Provider), c.EncryptedAccessToken, c.EncryptedRefreshToken, c.Invalid, c.ExpiresAt,
	)
	return err
}

func scanCredential(row *sql.Row) (*domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.EncryptedAccessToken, &c.EncryptedRefreshToken, &c.Invalid, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
