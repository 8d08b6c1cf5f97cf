package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"
)

const spotifyTokenURL = "https://accounts.spotify.com/api/token"

// SpotifyClient exchanges and refreshes tokens against the Spotify accounts
// token endpoint. Spotify authenticates refresh calls with HTTP Basic auth.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	// TokenURL is the token endpoint; overridable in tests.
	TokenURL string

	httpClient *http.Client
}

// NewSpotifyClient returns a SpotifyClient. timeout bounds every token-endpoint call.
func NewSpotifyClient(clientID, clientSecret string, timeout time.Duration) *SpotifyClient {
	return &SpotifyClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ExchangeCode exchanges an authorization code for a token set.
func (c *SpotifyClient) ExchangeCode(ctx context.Context, redirectURI, code string) (*TokenSet, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	return postForm(ctx, c.httpClient, c.TokenURL, form, nil)
}

// Refresh exchanges a refresh token for a fresh token set. Spotify may omit
// refresh_token from the response, in which case the old one stays valid.
func (c *SpotifyClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	return postForm(ctx, c.httpClient, c.TokenURL, form, map[string]string{
		"Authorization": "Basic " + auth,
	})
}
