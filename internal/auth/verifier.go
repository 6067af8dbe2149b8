// Package auth verifies connection tokens. Token issuance belongs to the
// account system and is not handled here; the chat subsystem only needs to
// know, at connection time, which authenticated user is on the other end.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/parley/internal/domain"
)

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	UserID   string
	Username string
}

// Verifier validates a raw token string and returns the identity it
// carries.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// claims defines the data stored inside the JWT.
type claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a token.
// Any failure maps to domain.ErrInvalidToken; callers close the connection
// and never retry on the server side.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.UserID == "" {
		return nil, domain.ErrInvalidToken
	}
	return &Identity{UserID: c.UserID, Username: c.Username}, nil
}
