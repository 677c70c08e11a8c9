package service

import (
	"context"

	"secgate/internal/domain"
	"secgate/internal/dto"
)

type TokenService interface {
	IssueAccessToken(ctx context.Context, user *domain.User) (string, error)
	// IssueRefreshToken returns the signed token and its jti.
	IssueRefreshToken(ctx context.Context, user *domain.User) (token string, jti string, err error)
	// Validate verifies signature and expiry only; revocation is a separate
	// check composed by callers.
	Validate(token string) (*domain.TokenClaims, error)
	Revoke(ctx context.Context, jti string) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
}
