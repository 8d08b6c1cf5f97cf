// Package service implements the identity manager: first-party session token
// issuance and single-use refresh-token rotation.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"songbridge/internal/identity/domain"
	"songbridge/internal/identity/repository"
	"songbridge/internal/security"
	userdomain "songbridge/internal/user/domain"
)

// ErrInvalidRefreshToken is returned when a presented refresh secret is
// unknown or already rotated. Replay of a rotated secret lands here, which is
// how token theft surfaces: of two parties racing on the same secret, at most
// one wins and the loser must re-authenticate.
var ErrInvalidRefreshToken = errors.New("invalid or rotated refresh token")

// UserRepo is the minimal user repository needed by the identity service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Service issues and rotates session tokens. Independent of the third-party
// providers; sessions exist even when every provider credential is invalid.
type Service struct {
	sessions repository.Store
	users    UserRepo
	tokens   *security.TokenProvider
	scope    []string
}

// NewService returns a Service with the given dependencies. scope is echoed
// in issued session tokens.
func NewService(sessions repository.Store, users UserRepo, tokens *security.TokenProvider, scope []string) *Service {
	return &Service{sessions: sessions, users: users, tokens: tokens, scope: scope}
}

// CreateSessionToken issues a session token for the user: a signed claim token
// plus a fresh opaque refresh secret. Any previously active refresh token of
// the user is invalidated in the same unit of work.
func (s *Service) CreateSessionToken(ctx context.Context, user *userdomain.User) (*domain.SessionToken, error) {
	secret, err := randomRefreshSecret()
	if err != nil {
		return nil, err
	}
	row := &domain.SessionRefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.Fingerprint(secret),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.CreateReplacingActive(ctx, row); err != nil {
		return nil, err
	}
	return s.buildToken(user, secret)
}

// RefreshSessionToken rotates a refresh secret: the presented secret is
// invalidated and a new one issued atomically, then a fresh claim token is
// signed. Rotation is strictly single-use; presenting the same secret twice
// fails the second time with ErrInvalidRefreshToken.
func (s *Service) RefreshSessionToken(ctx context.Context, secret string) (*domain.SessionToken, error) {
	old, err := s.sessions.GetByHash(ctx, security.Fingerprint(secret))
	if err != nil {
		return nil, err
	}
	if !old.Active() {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}

	newSecret, err := randomRefreshSecret()
	if err != nil {
		return nil, err
	}
	row := &domain.SessionRefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.Fingerprint(newSecret),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Rotate(ctx, old.ID, row, row.CreatedAt); err != nil {
		if errors.Is(err, repository.ErrAlreadyRotated) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return s.buildToken(user, newSecret)
}

func (s *Service) buildToken(user *userdomain.User, refreshSecret string) (*domain.SessionToken, error) {
	claimToken, _, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &domain.SessionToken{
		AccessToken:  claimToken,
		RefreshToken: refreshSecret,
		ExpiresIn:    int(s.tokens.TTL().Seconds()),
		Scope:        s.scope,
		TokenType:    "bearer",
	}, nil
}

// randomRefreshSecret returns a 32-byte cryptographically random secret,
// urlsafe base64-encoded.
func randomRefreshSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
