package repository

import (
	"context"
	"errors"
	"time"

	"songbridge/internal/identity/domain"
)

// ErrAlreadyRotated is returned by Rotate when the old token was invalidated
// concurrently: of two callers racing on the same secret, exactly one wins.
var ErrAlreadyRotated = errors.New("refresh token already rotated")

// Store defines persistence for session refresh tokens. Rows are never
// deleted; invalidation sets invalidated_at.
type Store interface {
	// GetByHash returns the token row with the given fingerprint, or nil if not found.
	GetByHash(ctx context.Context, hash string) (*domain.SessionRefreshToken, error)
	// CreateReplacingActive inserts t and, in the same transaction,
	// invalidates any currently active token of the same user.
	CreateReplacingActive(ctx context.Context, t *domain.SessionRefreshToken) error
	// Rotate atomically invalidates the token with oldID and inserts newToken.
	// Returns ErrAlreadyRotated if oldID is no longer active; neither a
	// half-invalidated nor a half-created state is ever observable.
	Rotate(ctx context.Context, oldID string, newToken *domain.SessionRefreshToken, at time.Time) error
}
