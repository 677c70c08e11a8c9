package domain

import "github.com/golang-jwt/jwt/v5"

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

type TokenClaims struct {
	Kind        string          `json:"kind"`
	Role        string          `json:"role,omitempty"`
	Territories []string        `json:"territories,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the revocation key; only meaningful for refresh tokens.
func (c *TokenClaims) JTI() string { return c.ID }
