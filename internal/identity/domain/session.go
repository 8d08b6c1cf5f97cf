// Package domain holds first-party session entities.
package domain

import "time"

// SessionRefreshToken is one issued refresh secret for a user. Only the
// SHA-256 fingerprint of the secret is persisted; the plaintext exists only in
// the response that issued it. At most one row per user has a nil
// InvalidatedAt at any time.
type SessionRefreshToken struct {
	ID            string
	UserID        string
	TokenHash     string
	CreatedAt     time.Time
	InvalidatedAt *time.Time
}

// Active reports whether the token has not been invalidated.
func (t *SessionRefreshToken) Active() bool {
	return t != nil && t.InvalidatedAt == nil
}

// SessionToken is the bearer payload handed to clients: a signed claim token
// plus the plaintext rotating refresh secret.
type SessionToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}
