// Package server is the HTTP boundary: OAuth login and account-link
// callbacks, session refresh, userinfo, and health.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	credentialdomain "songbridge/internal/credential/domain"
	identitydomain "songbridge/internal/identity/domain"
	"songbridge/internal/oidc"
	"songbridge/internal/provider"
	"songbridge/internal/security"
	userdomain "songbridge/internal/user/domain"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AuthorizationManager persists provider credentials obtained at the OAuth
// callbacks.
type AuthorizationManager interface {
	UpsertAccessToken(ctx context.Context, p credentialdomain.Provider, userID string, ts *provider.TokenSet) (*credentialdomain.Credential, error)
}

// IdentityService issues and rotates first-party session tokens.
type IdentityService interface {
	CreateSessionToken(ctx context.Context, user *userdomain.User) (*identitydomain.SessionToken, error)
	RefreshSessionToken(ctx context.Context, secret string) (*identitydomain.SessionToken, error)
}

// UserDirectory resolves and registers application users.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	UpsertByExternalID(ctx context.Context, externalID, username string) (*userdomain.User, error)
}

// IDTokenValidator verifies the OIDC ID token returned by the login provider.
type IDTokenValidator interface {
	Validate(idToken string) (*oidc.IdentityClaims, error)
}

// OAuthEndpoint describes one provider's authorize/exchange surface.
type OAuthEndpoint struct {
	Client       provider.Client
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
	Scope        []string
}

// Server wires the HTTP routes to the domain services.
type Server struct {
	db       Pinger
	tokens   *security.TokenProvider
	users    UserDirectory
	identity IdentityService
	manager  AuthorizationManager
	oidc     IDTokenValidator

	twitch  OAuthEndpoint
	spotify OAuthEndpoint
}

// New returns a Server. tokens guards the bearer-protected routes.
func New(
	db Pinger,
	tokens *security.TokenProvider,
	users UserDirectory,
	identity IdentityService,
	manager AuthorizationManager,
	validator IDTokenValidator,
	twitch, spotify OAuthEndpoint,
) *Server {
	return &Server{
		db:       db,
		tokens:   tokens,
		users:    users,
		identity: identity,
		manager:  manager,
		oidc:     validator,
		twitch:   twitch,
		spotify:  spotify,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	mux.HandleFunc("GET /oauth/twitch/redirect", s.handleTwitchRedirect)
	mux.HandleFunc("GET /oauth/twitch/callback", s.handleTwitchCallback)
	mux.HandleFunc("GET /oauth/spotify/redirect", s.requireSession(s.handleSpotifyRedirect))
	mux.HandleFunc("GET /oauth/spotify/callback", s.requireSession(s.handleSpotifyCallback))
	mux.HandleFunc("POST /session/refresh", s.handleSessionRefresh)
	mux.HandleFunc("GET /userinfo", s.requireSession(s.handleUserinfo))
	return mux
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			log.Printf("server: healthcheck: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
