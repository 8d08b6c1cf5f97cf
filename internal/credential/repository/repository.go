package repository

import (
	"context"
	"time"

	"songbridge/internal/credential/domain"
)

// Store defines persistence for third-party credentials. The database row is
// the ground truth for credential state; there is no in-process cache.
type Store interface {
	// Find returns the credential for (userID, provider), or nil if not found.
	Find(ctx context.Context, userID string, provider domain.Provider) (*domain.Credential, error)
	// ListExpiringBefore returns non-invalid credentials with expires_at before cutoff.
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Credential, error)
	// InTransaction runs fn inside one database transaction. Row locks taken by
	// fn via Tx.FindForUpdate are held until fn returns: fn returning nil
	// commits, any error rolls back.
	InTransaction(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional view of the store. FindForUpdate takes a pessimistic
// exclusive lock on the (userID, provider) row; concurrent callers for the
// same row block until the holder's transaction ends.
type Tx interface {
	FindForUpdate(ctx context.Context, userID string, provider domain.Provider) (*domain.Credential, error)
	Upsert(ctx context.Context, c *domain.Credential) error
}
