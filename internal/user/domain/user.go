// Package domain holds the application user entity.
package domain

import (
	"errors"
	"time"
)

// User is an application user, keyed by the subject id of the identity
// provider they logged in with.
type User struct {
	ID             string
	ExternalUserID string
	Username       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks required fields.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user: id is required")
	}
	if u.ExternalUserID == "" {
		return errors.New("user: external user id is required")
	}
	if u.Username == "" {
		return errors.New("user: username is required")
	}
	return nil
}
