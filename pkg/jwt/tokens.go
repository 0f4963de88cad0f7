package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "anonify"

// Claims defines JWT payload.
type Claims struct {
	AccountID         string `json:"account_id"`
	Username          string `json:"username"`
	Verified          bool   `json:"verified"`
	AcceptingMessages bool   `json:"accepting_messages"`
	jwtlib.RegisteredClaims
}

// Subject carries the account fields embedded into a session token.
type Subject struct {
	AccountID         string
	Username          string
	Verified          bool
	AcceptingMessages bool
}

// GenerateToken issues a signed JWT with provided secret and ttl. The token id
// is set to tokenID so the token can be revoked individually.
func GenerateToken(subject Subject, tokenID, secret string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	claims := &Claims{
		AccountID:         subject.AccountID,
		Username:          subject.Username,
		Verified:          subject.Verified,
		AcceptingMessages: subject.AcceptingMessages,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        tokenID,
			Issuer:    issuer,
			Subject:   subject.AccountID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
