package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	credentialdomain "songbridge/internal/credential/domain"
	identitydomain "songbridge/internal/identity/domain"
	identityservice "songbridge/internal/identity/service"
	"songbridge/internal/oidc"
	"songbridge/internal/provider"
	"songbridge/internal/security"
	userdomain "songbridge/internal/user/domain"
)

type fakePinger struct{ err error }

func (p *fakePinger) PingContext(context.Context) error { return p.err }

type fakeOAuthClient struct {
	ts  *provider.TokenSet
	err error

	gotRedirectURI string
	gotCode        string
}

func (c *fakeOAuthClient) ExchangeCode(ctx context.Context, redirectURI, code string) (*provider.TokenSet, error) {
	c.gotRedirectURI = redirectURI
	c.gotCode = code
	return c.ts, c.err
}

func (c *fakeOAuthClient) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return nil, errors.New("not used")
}

type fakeManager struct {
	err error

	gotProvider credentialdomain.Provider
	gotUserID   string
	gotTokenSet *provider.TokenSet
}

func (m *fakeManager) UpsertAccessToken(ctx context.Context, p credentialdomain.Provider, userID string, ts *provider.TokenSet) (*credentialdomain.Credential, error) {
	m.gotProvider = p
	m.gotUserID = userID
	m.gotTokenSet = ts
	if m.err != nil {
		return nil, m.err
	}
	return &credentialdomain.Credential{ID: "cred-1", UserID: userID, Provider: p}, nil
}

type fakeIdentity struct {
	created    *identitydomain.SessionToken
	refreshed  *identitydomain.SessionToken
	refreshErr error

	gotUser   *userdomain.User
	gotSecret string
}

func (s *fakeIdentity) CreateSessionToken(ctx context.Context, user *userdomain.User) (*identitydomain.SessionToken, error) {
	s.gotUser = user
	return s.created, nil
}

func (s *fakeIdentity) RefreshSessionToken(ctx context.Context, secret string) (*identitydomain.SessionToken, error) {
	s.gotSecret = secret
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.refreshed, nil
}

type fakeUsers struct {
	byID map[string]*userdomain.User

	gotExternalID string
	gotUsername   string
}

func (u *fakeUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return u.byID[id], nil
}

func (u *fakeUsers) UpsertByExternalID(ctx context.Context, externalID, username string) (*userdomain.User, error) {
	u.gotExternalID = externalID
	u.gotUsername = username
	return &userdomain.User{ID: "u1", ExternalUserID: externalID, Username: username}, nil
}

type fakeValidator struct {
	claims *oidc.IdentityClaims
	err    error
}

func (v *fakeValidator) Validate(idToken string) (*oidc.IdentityClaims, error) {
	return v.claims, v.err
}

type serverFixture struct {
	srv       *Server
	handler   http.Handler
	tokens    *security.TokenProvider
	twitch    *fakeOAuthClient
	spotify   *fakeOAuthClient
	manager   *fakeManager
	identity  *fakeIdentity
	users     *fakeUsers
	validator *fakeValidator
	db        *fakePinger
}

func newFixture() *serverFixture {
	tokens := security.NewTokenProvider("session-secret", time.Hour)
	twitch := &fakeOAuthClient{ts: &provider.TokenSet{
		AccessToken:  "twitch-access",
		RefreshToken: "twitch-refresh",
		ExpiresIn:    3600,
		IDToken:      "id-token",
	}}
	spotify := &fakeOAuthClient{ts: &provider.TokenSet{
		AccessToken:  "spotify-access",
		RefreshToken: "spotify-refresh",
		ExpiresIn:    3600,
	}}
	f := &serverFixture{
		tokens:  tokens,
		twitch:  twitch,
		spotify: spotify,
		manager: &fakeManager{},
		identity: &fakeIdentity{
			created:   &identitydomain.SessionToken{AccessToken: "session-at", RefreshToken: "session-rt", ExpiresIn: 3600, TokenType: "bearer"},
			refreshed: &identitydomain.SessionToken{AccessToken: "rotated-at", RefreshToken: "rotated-rt", ExpiresIn: 3600, TokenType: "bearer"},
		},
		users: &fakeUsers{byID: map[string]*userdomain.User{
			"u1": {ID: "u1", ExternalUserID: "twitch-123", Username: "streamer"},
		}},
		validator: &fakeValidator{claims: &oidc.IdentityClaims{Subject: "twitch-123", PreferredUsername: "streamer"}},
		db:        &fakePinger{},
	}
	f.srv = New(
		f.db, tokens, f.users, f.identity, f.manager, f.validator,
		OAuthEndpoint{Client: twitch, AuthorizeURL: "https://id.twitch.tv/oauth2/authorize", ClientID: "tw-client", RedirectURI: "https://api.example.com/oauth/twitch/callback", Scope: []string{"openid"}},
		OAuthEndpoint{Client: spotify, AuthorizeURL: "https://accounts.spotify.com/authorize", ClientID: "sp-client", RedirectURI: "https://api.example.com/oauth/spotify/callback", Scope: []string{"user-read-playback-state"}},
	)
	f.handler = f.srv.Handler()
	return f
}

func (f *serverFixture) bearer(t *testing.T, userID, username string) string {
	t.Helper()
	token, _, err := f.tokens.Issue(userID, username)
	if err != nil {
		t.Fatalf("issue session token: %v", err)
	}
	return "Bearer " + token
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	f.db.err = errors.New("connection refused")
	rec = f.do(httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when db is down", rec.Code)
	}
}

func TestTwitchRedirect(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/twitch/redirect", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Host != "id.twitch.tv" {
		t.Errorf("host = %q", loc.Host)
	}
	q := loc.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != "tw-client" || q.Get("scope") != "openid" {
		t.Errorf("query = %v", q)
	}
}

func TestTwitchCallback(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/twitch/callback?code=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if f.twitch.gotCode != "abc" {
		t.Errorf("exchanged code = %q", f.twitch.gotCode)
	}
	if f.users.gotExternalID != "twitch-123" || f.users.gotUsername != "streamer" {
		t.Errorf("user upsert = %q %q", f.users.gotExternalID, f.users.gotUsername)
	}
	if f.manager.gotProvider != credentialdomain.ProviderTwitch || f.manager.gotUserID != "u1" {
		t.Errorf("credential upsert = %q %q", f.manager.gotProvider, f.manager.gotUserID)
	}
	if f.identity.gotUser == nil || f.identity.gotUser.ID != "u1" {
		t.Errorf("session issued for %+v", f.identity.gotUser)
	}

	var st identitydomain.SessionToken
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if st.AccessToken != "session-at" || st.TokenType != "bearer" {
		t.Errorf("session token = %+v", st)
	}
}

func TestTwitchCallback_ErrorParams(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name string
		path string
	}{
		{"no code or error", "/oauth/twitch/callback"},
		{"denied consent", "/oauth/twitch/callback?error=access_denied"},
		{"provider error", "/oauth/twitch/callback?error=server_error&error_description=boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTwitchCallback_ExchangeFailures(t *testing.T) {
	f := newFixture()
	f.twitch.err = provider.ErrCredentialsRejected
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/twitch/callback?code=abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("rejected code: status = %d, want 401", rec.Code)
	}

	f.twitch.err = errors.New("connection reset")
	rec = f.do(httptest.NewRequest(http.MethodGet, "/oauth/twitch/callback?code=abc", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("transient failure: status = %d, want 502", rec.Code)
	}
}

func TestTwitchCallback_InvalidIDToken(t *testing.T) {
	f := newFixture()
	f.validator.claims = nil
	f.validator.err = oidc.ErrTokenInvalid
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/twitch/callback?code=abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSpotifyCallback_RequiresSession(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/spotify/callback?code=abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no bearer: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/oauth/spotify/callback?code=abc", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = f.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad bearer: status = %d, want 401", rec.Code)
	}
}

func TestSpotifyCallback(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/oauth/spotify/callback?code=xyz", nil)
	req.Header.Set("Authorization", f.bearer(t, "u1", "streamer"))
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.spotify.gotCode != "xyz" {
		t.Errorf("exchanged code = %q", f.spotify.gotCode)
	}
	if f.manager.gotProvider != credentialdomain.ProviderSpotify || f.manager.gotUserID != "u1" {
		t.Errorf("credential upsert = %q %q", f.manager.gotProvider, f.manager.gotUserID)
	}
}

func TestSessionRefresh(t *testing.T) {
	f := newFixture()
	body := strings.NewReader(`{"refresh_token":"secret-1"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/session/refresh", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.identity.gotSecret != "secret-1" {
		t.Errorf("secret = %q", f.identity.gotSecret)
	}

	var st identitydomain.SessionToken
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if st.AccessToken != "rotated-at" {
		t.Errorf("session token = %+v", st)
	}
}

func TestSessionRefresh_Failures(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/session/refresh", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", rec.Code)
	}

	f.identity.refreshErr = identityservice.ErrInvalidRefreshToken
	rec = f.do(httptest.NewRequest(http.MethodPost, "/session/refresh", strings.NewReader(`{"refresh_token":"replayed"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replayed secret: status = %d, want 401", rec.Code)
	}
}

func TestUserinfo(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", f.bearer(t, "u1", "streamer"))
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var u userResponse
	if err := json.NewDecoder(rec.Body).Decode(&u); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if u.ID != "u1" || u.Username != "streamer" {
		t.Errorf("user = %+v", u)
	}
}

func TestUserinfo_UnknownUser(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", f.bearer(t, "gone", "ghost"))
	rec := f.do(req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
