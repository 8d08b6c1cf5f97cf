package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTwitchClient_Refresh(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "A2",
			"refresh_token": "R2",
			"expires_in":    3600,
			"scope":         []string{"openid", "user:read:email"},
			"token_type":    "bearer",
		})
	}))
	defer srv.Close()

	c := NewTwitchClient("cid", "csec", time.Second)
	c.TokenURL = srv.URL

	ts, err := c.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ts.AccessToken != "A2" || ts.RefreshToken != "R2" || ts.ExpiresIn != 3600 {
		t.Errorf("token set = %+v", ts)
	}
	if len(ts.Scope) != 2 {
		t.Errorf("scope = %v, want 2 entries", ts.Scope)
	}
	if gotForm["grant_type"] != "refresh_token" || gotForm["refresh_token"] != "R1" || gotForm["client_id"] != "cid" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestTwitchClient_ExchangeCodeCarriesIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostFormValue("grant_type"))
		}
		if r.PostFormValue("redirect_uri") != "https://app/callback" {
			t.Errorf("redirect_uri = %q", r.PostFormValue("redirect_uri"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "A1",
			"refresh_token": "R1",
			"expires_in":    3600,
			"id_token":      "header.payload.sig",
			"scope":         []string{"openid"},
			"token_type":    "bearer",
		})
	}))
	defer srv.Close()

	c := NewTwitchClient("cid", "csec", time.Second)
	c.TokenURL = srv.URL

	ts, err := c.ExchangeCode(context.Background(), "https://app/callback", "the-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if ts.IDToken != "header.payload.sig" {
		t.Errorf("IDToken = %q", ts.IDToken)
	}
}

func TestSpotifyClient_RefreshUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csec" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		// Spotify returns scope as a space-separated string and may omit refresh_token.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "A2",
			"expires_in":   3600,
			"scope":        "user-read-playback-state user-modify-playback-state",
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	c := NewSpotifyClient("cid", "csec", time.Second)
	c.TokenURL = srv.URL

	ts, err := c.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ts.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty when provider omits it", ts.RefreshToken)
	}
	if len(ts.Scope) != 2 || ts.Scope[0] != "user-read-playback-state" {
		t.Errorf("scope = %v", ts.Scope)
	}
}

func TestClassification(t *testing.T) {
	testCases := []struct {
		name         string
		status       int
		wantRejected bool
	}{
		{"bad request is rejected", http.StatusBadRequest, true},
		{"unauthorized is rejected", http.StatusUnauthorized, true},
		{"forbidden is transient", http.StatusForbidden, false},
		{"server error is transient", http.StatusInternalServerError, false},
		{"bad gateway is transient", http.StatusBadGateway, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			c := NewTwitchClient("cid", "csec", time.Second)
			c.TokenURL = srv.URL

			_, err := c.Refresh(context.Background(), "R1")
			if err == nil {
				t.Fatal("Refresh should fail")
			}
			if got := errors.Is(err, ErrCredentialsRejected); got != tc.wantRejected {
				t.Errorf("errors.Is(err, ErrCredentialsRejected) = %v, want %v (err=%v)", got, tc.wantRejected, err)
			}
		})
	}
}

func TestClassification_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewTwitchClient("cid", "csec", time.Second)
	c.TokenURL = srv.URL

	_, err := c.Refresh(context.Background(), "R1")
	if err == nil {
		t.Fatal("Refresh should fail")
	}
	if errors.Is(err, ErrCredentialsRejected) {
		t.Errorf("network error must not classify as rejected: %v", err)
	}
}

func TestScope_UnmarshalForms(t *testing.T) {
	var s Scope
	if err := json.Unmarshal([]byte(`["a","b"]`), &s); err != nil || len(s) != 2 {
		t.Errorf("array form: %v %v", s, err)
	}
	if err := json.Unmarshal([]byte(`"a b c"`), &s); err != nil || len(s) != 3 {
		t.Errorf("string form: %v %v", s, err)
	}
	if err := json.Unmarshal([]byte(`""`), &s); err != nil || s != nil {
		t.Errorf("empty string form: %v %v", s, err)
	}
	if err := json.Unmarshal([]byte(`42`), &s); err == nil {
		t.Error("number form should fail")
	}
}
