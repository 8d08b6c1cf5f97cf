// Package provider implements OAuth token-endpoint clients for the supported
// third-party providers.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrCredentialsRejected is returned when the provider refuses the presented
// credentials (HTTP 400/401 from the token endpoint). This outcome is
// permanent until the user re-authorizes; any other failure is transient.
var ErrCredentialsRejected = errors.New("provider rejected credentials")

// TokenSet is the result of a token-endpoint call.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        Scope  `json:"scope"`
	TokenType    string `json:"token_type"`
	// IDToken is set only on a Twitch authorization-code exchange with the
	// openid scope; it carries the OIDC identity token for login.
	IDToken string `json:"id_token"`
}

// Scope accepts both JSON forms providers use: Twitch returns an array of
// strings, Spotify a single space-separated string.
type Scope []string

func (s *Scope) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	if joined == "" {
		*s = nil
		return nil
	}
	*s = strings.Fields(joined)
	return nil
}

// Client is implemented once per provider. Both operations surface
// ErrCredentialsRejected for a refused grant; any other error is transient.
type Client interface {
	ExchangeCode(ctx context.Context, redirectURI, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// postForm posts form data to a token endpoint and decodes the token response.
// headers may add e.g. a Basic Authorization header.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, headers map[string]string) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %w", strings.TrimSpace(string(body)), ErrCredentialsRejected)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var ts TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if ts.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &ts, nil
}
