package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscoveryDocument is the subset of the OpenID Connect discovery document
// this service reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

const discoveryPath = "/.well-known/openid-configuration"

// FetchDiscovery retrieves the discovery document for issuer and then the key
// set it points at. Intended for startup; both fetches share the context
// deadline.
func FetchDiscovery(ctx context.Context, issuer string, timeout time.Duration) (*DiscoveryDocument, *JWKS, error) {
	client := &http.Client{Timeout: timeout}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var doc DiscoveryDocument
	if err := getJSON(ctx, client, strings.TrimRight(issuer, "/")+discoveryPath, &doc); err != nil {
		return nil, nil, fmt.Errorf("oidc: fetch discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, nil, fmt.Errorf("oidc: discovery document for %s has no jwks_uri", issuer)
	}

	var jwks JWKS
	if err := getJSON(ctx, client, doc.JWKSURI, &jwks); err != nil {
		return nil, nil, fmt.Errorf("oidc: fetch key set: %w", err)
	}
	return &doc, &jwks, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
