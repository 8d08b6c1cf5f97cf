// Package oidc verifies third-party identity tokens against a provider's
// published key set.
package oidc

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every verification failure: bad signature,
// unknown key id, wrong issuer or audience, missing subject, or expiry. It is
// deliberately distinct from transient errors so the boundary layer can
// redirect to re-authentication instead of retrying.
var ErrTokenInvalid = errors.New("invalid identity token")

// clockSkewLeeway bounds acceptable clock drift between this service and the
// provider when checking exp/iat.
const clockSkewLeeway = 300 * time.Second

// JWKS is a JSON Web Key Set as served by a provider's jwks_uri.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single RSA verification key from a key set.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaPublicKey decodes the modulus and exponent into an rsa.PublicKey.
func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, errors.New("oidc: unsupported key type " + k.Kty)
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("oidc: invalid key exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}

// IdentityClaims is the verified identity of an external account.
type IdentityClaims struct {
	Subject           string
	Issuer            string
	Audience          string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	PreferredUsername string
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
}

// Validator verifies ID tokens for one provider: signatures against the key
// set, issuer against the discovery issuer, audience against the client id.
type Validator struct {
	issuer   string
	clientID string
	keys     map[string]*rsa.PublicKey
	parser   *jwt.Parser
}

// NewValidator returns a Validator for the given issuer and client id using
// the keys in jwks. Returns an error if jwks carries no usable RSA key.
func NewValidator(issuer, clientID string, jwks *JWKS) (*Validator, error) {
	if jwks == nil || len(jwks.Keys) == 0 {
		return nil, errors.New("oidc: no keys in key set")
	}
	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		pub, err := k.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("oidc: no usable RSA keys in key set")
	}
	return &Validator{
		issuer:   issuer,
		clientID: clientID,
		keys:     keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithLeeway(clockSkewLeeway),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(clientID),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Validate verifies idToken and returns its identity claims. The verification
// key is selected by the kid in the token header; a token whose kid matches no
// configured key fails with ErrTokenInvalid.
func (v *Validator) Validate(idToken string) (*IdentityClaims, error) {
	token, err := v.parser.ParseWithClaims(idToken, &idTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, ok := v.keys[kid]
		if !ok {
			return nil, ErrTokenInvalid
		}
		return key, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*idTokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	out := &IdentityClaims{
		Subject:           claims.Subject,
		Issuer:            claims.Issuer,
		Audience:          v.clientID,
		PreferredUsername: claims.PreferredUsername,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
