package provider

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

const twitchTokenURL = "https://id.twitch.tv/oauth2/token"

// TwitchClient exchanges and refreshes tokens against the Twitch OAuth token
// endpoint. Twitch takes the client id and secret as form fields.
type TwitchClient struct {
	clientID     string
	clientSecret string
	// TokenURL is the token endpoint; overridable in tests.
	TokenURL string

	httpClient *http.Client
}

// NewTwitchClient returns a TwitchClient. timeout bounds every token-endpoint call.
func NewTwitchClient(clientID, clientSecret string, timeout time.Duration) *TwitchClient {
	return &TwitchClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		TokenURL:     twitchTokenURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ExchangeCode exchanges an authorization code for a token set. The returned
// set includes the OIDC id_token when the openid scope was requested.
func (c *TwitchClient) ExchangeCode(ctx context.Context, redirectURI, code string) (*TokenSet, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	return postForm(ctx, c.httpClient, c.TokenURL, form, nil)
}

// Refresh exchanges a refresh token for a fresh token set.
func (c *TwitchClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return postForm(ctx, c.httpClient, c.TokenURL, form, nil)
}
