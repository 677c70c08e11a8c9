package service

import (
	"context"

	"secgate/internal/domain"
	"secgate/internal/dto"
)

type SessionService interface {
	// Create reaps expired sessions, enforces the per-user cap by evicting
	// the oldest-by-last-activity sessions, and inserts the new row — all in
	// one transaction. Returns the opaque session token.
	Create(ctx context.Context, userID domain.UserID, ip, userAgent string, payload map[string]string) (string, error)
	// Validate returns the view for an active, unexpired session owned by an
	// active account, refreshing last-activity as a side effect. Returns
	// domain.ErrSessionInvalid when no such session exists.
	Validate(ctx context.Context, sessionToken string) (*dto.SessionView, error)
	Invalidate(ctx context.Context, sessionToken string) error
	InvalidateAll(ctx context.Context, userID domain.UserID, exceptToken string) (int64, error)
	List(ctx context.Context, userID domain.UserID, currentToken string) ([]dto.SessionSummary, error)
	DetectSuspicious(ctx context.Context, userID domain.UserID) ([]dto.Finding, error)
	ReapExpired(ctx context.Context) (int64, error)
}
