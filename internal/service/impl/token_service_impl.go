package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/observability/metrics"
	"secgate/internal/revocation"
)

type TokenConfig struct {
	Issuer     string
	AccessTTL  time.Duration // e.g. 15 * time.Minute
	RefreshTTL time.Duration // e.g. 7 * 24h
	SigningKey []byte        // HS256 secret
}

type subjectStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type TokenServiceImpl struct {
	cfg       TokenConfig
	users     subjectStore
	blacklist revocation.Blacklist
	now       func() time.Time
}

func NewTokenServiceHS256(cfg TokenConfig, users subjectStore, blacklist revocation.Blacklist) *TokenServiceImpl {
	return &TokenServiceImpl{cfg: cfg, users: users, blacklist: blacklist, now: time.Now}
}

func (t *TokenServiceImpl) IssueAccessToken(_ context.Context, user *domain.User) (string, error) {
	now := t.now().UTC()
	claims := domain.TokenClaims{
		Kind:        domain.TokenKindAccess,
		Role:        user.Role,
		Territories: user.Territories,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
}

func (t *TokenServiceImpl) IssueRefreshToken(_ context.Context, user *domain.User) (string, string, error) {
	now := t.now().UTC()
	jti := uuid.New().String()
	claims := domain.TokenClaims{
		Kind: domain.TokenKindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// Validate checks signature and expiry; revocation is deliberately not
// consulted here so callers can compose the checks they need.
func (t *TokenServiceImpl) Validate(tokenStr string) (*domain.TokenClaims, error) {
	claims := &domain.TokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (t *TokenServiceImpl) Revoke(ctx context.Context, jti string) error {
	return t.blacklist.Revoke(ctx, jti, t.cfg.RefreshTTL)
}

// IsRevoked fails closed: a blacklist read error reports the token as
// revoked rather than letting a possibly-revoked token through.
func (t *TokenServiceImpl) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := t.blacklist.IsRevoked(ctx, jti)
	if err != nil {
		slog.Error("revocation lookup failed", "error", err)
		return true, err
	}
	return revoked, nil
}

// Refresh rotates on use: the consumed refresh token's jti is revoked before
// the replacement pair is signed, so a replayed old token is rejected.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()

	claims, err := t.Validate(refreshToken)
	if err != nil {
		result = "failure"
		return nil, err
	}
	if claims.Kind != domain.TokenKindRefresh {
		result = "failure"
		return nil, domain.ErrTokenKind
	}
	if revoked, err := t.blacklist.IsRevoked(ctx, claims.ID); err != nil || revoked {
		result = "failure"
		if err != nil {
			slog.Error("revocation lookup failed during refresh", "error", err)
		}
		return nil, domain.ErrTokenRevoked
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		result = "failure"
		return nil, domain.ErrTokenInvalid
	}
	user, err := t.users.GetByID(ctx, userID)
	if err != nil {
		result = "failure"
		return nil, domain.ErrTokenInvalid
	}
	if !user.IsActive {
		result = "failure"
		return nil, domain.ErrUserDisabled
	}

	if err := t.Revoke(ctx, claims.ID); err != nil {
		result = "failure"
		return nil, err
	}

	access, err := t.IssueAccessToken(ctx, user)
	if err != nil {
		result = "failure"
		return nil, err
	}
	refresh, _, err := t.IssueRefreshToken(ctx, user)
	if err != nil {
		result = "failure"
		return nil, err
	}

	slog.Info("refreshed tokens", "user_id", user.ID)
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}
