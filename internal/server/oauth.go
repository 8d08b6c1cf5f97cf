package server

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"songbridge/internal/credential/domain"
	"songbridge/internal/provider"
)

// handleTwitchRedirect sends the browser to the Twitch authorize page.
func (s *Server) handleTwitchRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, authorizeURL(s.twitch), http.StatusTemporaryRedirect)
}

// handleTwitchCallback finishes the login flow: exchange the code, verify the
// ID token, register the user, store the credential, and issue a session
// token.
func (s *Server) handleTwitchCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := s.callbackCode(w, r, "twitch")
	if !ok {
		return
	}

	ts, err := s.twitch.Client.ExchangeCode(r.Context(), s.twitch.RedirectURI, code)
	if err != nil {
		s.writeExchangeError(w, "twitch", err)
		return
	}
	claims, err := s.oidc.Validate(ts.IDToken)
	if err != nil {
		log.Printf("server: twitch callback: id token rejected: %v", err)
		writeError(w, http.StatusUnauthorized, "invalid identity token")
		return
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Subject
	}
	user, err := s.users.UpsertByExternalID(r.Context(), claims.Subject, username)
	if err != nil {
		log.Printf("server: twitch callback: upsert user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := s.manager.UpsertAccessToken(r.Context(), domain.ProviderTwitch, user.ID, ts); err != nil {
		log.Printf("server: twitch callback: store credential: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	session, err := s.identity.CreateSessionToken(r.Context(), user)
	if err != nil {
		log.Printf("server: twitch callback: create session: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSpotifyRedirect sends the logged-in user to the Spotify authorize
// page to link their account.
func (s *Server) handleSpotifyRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, authorizeURL(s.spotify), http.StatusTemporaryRedirect)
}

// handleSpotifyCallback stores the Spotify credential for the session user.
func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := s.callbackCode(w, r, "spotify")
	if !ok {
		return
	}

	ts, err := s.spotify.Client.ExchangeCode(r.Context(), s.spotify.RedirectURI, code)
	if err != nil {
		s.writeExchangeError(w, "spotify", err)
		return
	}

	claims := sessionClaims(r.Context())
	if _, err := s.manager.UpsertAccessToken(r.Context(), domain.ProviderSpotify, claims.UserID, ts); err != nil {
		log.Printf("server: spotify callback: store credential: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

// callbackCode extracts the authorization code, handling the provider's
// error redirects. A denied consent is the user's choice and not logged.
func (s *Server) callbackCode(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	q := r.URL.Query()
	code := q.Get("code")
	oauthErr := q.Get("error")

	if code == "" && oauthErr == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return "", false
	}
	if oauthErr != "" || code == "" {
		if oauthErr == "" {
			oauthErr = "Invalid request"
		}
		if oauthErr != "access_denied" {
			log.Printf("server: %s callback returned error: %s", name, oauthErr)
		}
		if desc := q.Get("error_description"); desc != "" {
			oauthErr = oauthErr + ": " + desc
		}
		writeError(w, http.StatusBadRequest, oauthErr)
		return "", false
	}
	return code, true
}

func (s *Server) writeExchangeError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, provider.ErrCredentialsRejected) {
		log.Printf("server: %s code exchange rejected: %v", name, err)
		writeError(w, http.StatusUnauthorized, "authorization code rejected")
		return
	}
	log.Printf("server: %s code exchange failed: %v", name, err)
	writeError(w, http.StatusBadGateway, "provider unavailable")
}

func authorizeURL(ep OAuthEndpoint) string {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", ep.ClientID)
	v.Set("redirect_uri", ep.RedirectURI)
	v.Set("scope", strings.Join(ep.Scope, " "))
	return ep.AuthorizeURL + "?" + v.Encode()
}
