package service

import (
	"context"

	"secgate/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, userAgent string) (*dto.LoginResponse, error)
	Logout(ctx context.Context, refreshToken, sessionToken string) error
}
