package auth

import (
	"final-draft/domain"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "final-draft"

// SessionClaims is the content of a session credential.
// The JWT id carries the session key so a credential can be revoked server side.
type SessionClaims struct {
	UserID domain.UserID `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session credentials with a shared HMAC secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue creates a signed JWT for a stored session.
func (t *TokenIssuer) Issue(session domain.Session) (string, error) {
	claims := &SessionClaims{
		UserID: session.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.Key,
			Subject:   session.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	// Create the token using the HS256 algorithm (HMAC with SHA256).
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates the signature, the algorithm and the expiration of a credential.
func (t *TokenIssuer) Parse(credential string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(credential, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.UserID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
