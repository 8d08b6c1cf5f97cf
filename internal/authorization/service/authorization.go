// Package service implements the authorization manager: it serves currently
// valid provider access tokens, refreshing and re-encrypting them on demand.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"songbridge/internal/credential/domain"
	"songbridge/internal/credential/repository"
	"songbridge/internal/provider"
	"songbridge/internal/security"
)

// GraceWindow is the lead time before expiry at which a stored access token is
// treated as needing refresh, so a token valid at check time cannot expire a
// few seconds later at use time.
const GraceWindow = 60 * time.Second

// Sentinel errors for the authorization manager; the HTTP boundary maps them
// to response codes.
var (
	// ErrCredentialNotFound means there is no usable credential: no row, a
	// sticky-invalid row, or a refresh the provider just rejected. The user
	// must re-authorize.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrProviderUnavailable means the refresh failed transiently (network,
	// 5xx, timeout). Nothing is persisted; the next caller or the background
	// refresher retries.
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
)

// Manager orchestrates the credential store, cipher, and provider clients.
// All credential state lives in the store row; the row lock taken inside
// InTransaction is the only concurrency-control primitive, so on-demand and
// background refreshes of the same credential serialize.
type Manager struct {
	store   repository.Store
	cipher  *security.Cipher
	clients map[domain.Provider]provider.Client
}

// NewManager returns a Manager with the given dependencies. clients maps each
// supported provider to its token-endpoint client.
func NewManager(store repository.Store, cipher *security.Cipher, clients map[domain.Provider]provider.Client) *Manager {
	return &Manager{store: store, cipher: cipher, clients: clients}
}

// GetAccessToken returns a currently valid plaintext access token for
// (provider, userID), refreshing through the provider if the stored token is
// inside the grace window. Returns ErrCredentialNotFound when the user must
// re-authorize and ErrProviderUnavailable on a transient refresh failure.
func (m *Manager) GetAccessToken(ctx context.Context, p domain.Provider, userID string) (string, error) {
	client, ok := m.clients[p]
	if !ok {
		// Programming/config error, not a user-facing failure.
		log.Printf("authorization: access token requested for unknown provider %q (user %s)", p, userID)
		return "", ErrCredentialNotFound
	}

	var token string
	var outcome error
	err := m.store.InTransaction(ctx, func(tx repository.Tx) error {
		cred, err := tx.FindForUpdate(ctx, userID, p)
		if err != nil {
			return err
		}
		if cred == nil || cred.Invalid {
			outcome = ErrCredentialNotFound
			return nil
		}

		now := time.Now().UTC()
		if cred.ExpiresAt.After(now.Add(GraceWindow)) {
			plain, err := m.cipher.Decrypt(cred.EncryptedAccessToken)
			if err != nil {
				return fmt.Errorf("decrypt access token for user %s: %w", userID, err)
			}
			token = plain
			return nil
		}

		refreshed, err := m.refreshLocked(ctx, tx, client, cred)
		if err != nil {
			if isRefreshOutcome(err) {
				// Commit so a sticky invalidation persists.
				outcome = err
				return nil
			}
			return err
		}
		token = refreshed
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome != nil {
		return "", outcome
	}
	return token, nil
}

// RefreshCredential drives the same locked refresh sequence as GetAccessToken
// for a credential the background refresher picked up, without the grace-window
// short-circuit. A row that disappeared or went invalid since listing is
// reported as ErrCredentialNotFound.
func (m *Manager) RefreshCredential(ctx context.Context, p domain.Provider, userID string) error {
	client, ok := m.clients[p]
	if !ok {
		log.Printf("authorization: refresh requested for unknown provider %q (user %s)", p, userID)
		return ErrCredentialNotFound
	}

	var outcome error
	err := m.store.InTransaction(ctx, func(tx repository.Tx) error {
		cred, err := tx.FindForUpdate(ctx, userID, p)
		if err != nil {
			return err
		}
		if cred == nil || cred.Invalid {
			outcome = ErrCredentialNotFound
			return nil
		}
		if _, err := m.refreshLocked(ctx, tx, client, cred); err != nil {
			if isRefreshOutcome(err) {
				outcome = err
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

// UpsertAccessToken encrypts and persists a token set obtained from an
// authorization-code exchange, creating the credential row if absent.
// Re-authorizing explicitly clears a sticky invalidation.
func (m *Manager) UpsertAccessToken(ctx context.Context, p domain.Provider, userID string, ts *provider.TokenSet) (*domain.Credential, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown provider %q", p)
	}
	encAccess, err := m.cipher.Encrypt(ts.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := m.cipher.Encrypt(ts.RefreshToken)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(time.Duration(ts.ExpiresIn) * time.Second)

	var out *domain.Credential
	err = m.store.InTransaction(ctx, func(tx repository.Tx) error {
		cred, err := tx.FindForUpdate(ctx, userID, p)
		if err != nil {
			return err
		}
		if cred == nil {
			cred = &domain.Credential{
				ID:       uuid.New().String(),
				UserID:   userID,
				Provider: p,
			}
		}
		cred.EncryptedAccessToken = encAccess
		cred.EncryptedRefreshToken = encRefresh
		cred.ExpiresAt = expiresAt
		cred.Invalid = false
		if err := tx.Upsert(ctx, cred); err != nil {
			return err
		}
		out = cred
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// refreshLocked refreshes cred through the provider and persists the result
// via tx. The caller must hold the row lock. A rejected grant marks the row
// sticky-invalid and returns ErrCredentialNotFound; a transient failure leaves
// the row untouched and returns ErrProviderUnavailable.
func (m *Manager) refreshLocked(ctx context.Context, tx repository.Tx, client provider.Client, cred *domain.Credential) (string, error) {
	refreshPlain, err := m.cipher.Decrypt(cred.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token for user %s: %w", cred.UserID, err)
	}

	ts, err := client.Refresh(ctx, refreshPlain)
	if err != nil {
		if errors.Is(err, provider.ErrCredentialsRejected) {
			cred.Invalid = true
			if uerr := tx.Upsert(ctx, cred); uerr != nil {
				return "", uerr
			}
			log.Printf("authorization: %s rejected refresh for user %s; credential invalidated", cred.Provider, cred.UserID)
			return "", ErrCredentialNotFound
		}
		log.Printf("authorization: %s refresh failed for user %s: %v", cred.Provider, cred.UserID, err)
		return "", ErrProviderUnavailable
	}

	encAccess, err := m.cipher.Encrypt(ts.AccessToken)
	if err != nil {
		return "", err
	}
	// Some providers omit the refresh token on refresh; keep the stored one.
	encRefresh := cred.EncryptedRefreshToken
	if ts.RefreshToken != "" {
		encRefresh, err = m.cipher.Encrypt(ts.RefreshToken)
		if err != nil {
			return "", err
		}
	}

	cred.EncryptedAccessToken = encAccess
	cred.EncryptedRefreshToken = encRefresh
	cred.ExpiresAt = time.Now().UTC().Add(time.Duration(ts.ExpiresIn) * time.Second)
	if err := tx.Upsert(ctx, cred); err != nil {
		return "", err
	}
	return ts.AccessToken, nil
}

func isRefreshOutcome(err error) bool {
	return errors.Is(err, ErrCredentialNotFound) || errors.Is(err, ErrProviderUnavailable)
}
