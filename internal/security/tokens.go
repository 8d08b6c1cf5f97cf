package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a session claim token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims holds the JWT claims of a first-party session claim token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TokenProvider issues and validates session claim tokens signed with HS256.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given secret.
// ttl is the claim-token lifetime.
func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), ttl: ttl}
}

// TTL returns the claim-token lifetime.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// Issue signs a session claim token for the given user.
// Returns the token string and its expiration time.
func (p *TokenProvider) Issue(userID, username string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   userID,
		Username: username,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	return token, expiresAt, err
}

// Validate parses and validates a session claim token (signature, exp).
// Only HS256 is accepted; any failure returns ErrInvalidToken.
func (p *TokenProvider) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
