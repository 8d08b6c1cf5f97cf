package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	identityservice "songbridge/internal/identity/service"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleSessionRefresh trades a refresh secret for a fresh session token.
// The secret is single use; a replayed one gets 401.
func (s *Server) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	session, err := s.identity.RefreshSessionToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidRefreshToken) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		log.Printf("server: session refresh: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type userResponse struct {
	ID             string    `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// handleUserinfo returns the session user's profile.
func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	claims := sessionClaims(r.Context())

	user, err := s.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("server: userinfo: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:             user.ID,
		ExternalUserID: user.ExternalUserID,
		Username:       user.Username,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	})
}
