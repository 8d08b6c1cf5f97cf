// Package domain holds the third-party credential entity.
package domain

import (
	"errors"
	"time"
)

// Provider identifies a third-party OAuth provider.
type Provider string

const (
	ProviderTwitch  Provider = "twitch"
	ProviderSpotify Provider = "spotify"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderTwitch, ProviderSpotify:
		return true
	}
	return false
}

// Credential is a stored third-party access/refresh token pair for one user
// and one provider. Token columns hold the cipher's hex|hex format, never
// plaintext. Invalid is sticky: once set it is only cleared by a fresh
// authorization-code exchange.
type Credential struct {
	ID                    string
	UserID                string
	Provider              Provider
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	Invalid               bool
	ExpiresAt             time.Time
}

// Validate checks required fields.
func (c *Credential) Validate() error {
	if c.ID == "" {
		return errors.New("credential: id is required")
	}
	if c.UserID == "" {
		return errors.New("credential: user id is required")
	}
	if !c.Provider.Valid() {
		return errors.New("credential: unknown provider")
	}
	if c.EncryptedAccessToken == "" || c.EncryptedRefreshToken == "" {
		return errors.New("credential: encrypted tokens are required")
	}
	return nil
}
