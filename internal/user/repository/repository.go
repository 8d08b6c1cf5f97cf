package repository

import (
	"context"

	"songbridge/internal/user/domain"
)

// Repository defines persistence for application users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	// UpsertByExternalID creates the user for externalID or updates their
	// username, and returns the stored row.
	UpsertByExternalID(ctx context.Context, externalID, username string) (*domain.User, error)
}
