package impl

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"secgate/internal/audit"
	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/observability/metrics"
	"secgate/internal/service"
	"secgate/internal/store"
)

type accountStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type accountWriter interface {
	Create(ctx context.Context, u *domain.User) error
}

type credentialStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.PasswordCredential, error)
	Upsert(ctx context.Context, c *domain.PasswordCredential) error
}

type authDataStore interface {
	WithTx(ctx context.Context, fn func(tx authTx) error) error
}

type authTx interface {
	Users() accountWriter
	Credentials() credentialStore
}

type gormAuthStoreAdapter struct{ store *store.Store }

func (g gormAuthStoreAdapter) WithTx(ctx context.Context, fn func(tx authTx) error) error {
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormAuthTxAdapter{tx: tx})
	})
}

type gormAuthTxAdapter struct{ tx *store.Store }

func (g gormAuthTxAdapter) Users() accountWriter         { return g.tx.Users() }
func (g gormAuthTxAdapter) Credentials() credentialStore { return g.tx.Credentials() }

// newly registered accounts start with the least-privileged role
const defaultRole = "agent"

type AuthServiceImpl struct {
	store       authDataStore
	users       accountStore
	credentials credentialStore
	passwords   service.PasswordService
	tokens      service.TokenService
	sessions    service.SessionService
	sink        audit.Sink
}

func NewAuthServiceImpl(
	st *store.Store,
	passwords service.PasswordService,
	tokens service.TokenService,
	sessions service.SessionService,
	sink audit.Sink,
) *AuthServiceImpl {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &AuthServiceImpl{
		store:       gormAuthStoreAdapter{store: st},
		users:       st.Users(),
		credentials: st.Credentials(),
		passwords:   passwords,
		tokens:      tokens,
		sessions:    sessions,
		sink:        sink,
	}
}

// Register creates the account and its password credential in one
// transaction. Field-level checks (username shape, password length,
// uniqueness) run in the validation gate before this is reached; the checks
// here are the invariants the service must hold on its own.
func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest) (*dto.RegisterResponse, error) {
	if r.Username == "" || r.Password == "" {
		return nil, domain.ErrValidation
	}
	hash, salt, params, algo, ver, err := a.passwords.Hash(r.Password)
	if err != nil {
		return nil, err
	}

	var out dto.RegisterResponse
	err = a.store.WithTx(ctx, func(tx authTx) error {
		now := time.Now().UTC()
		u := &domain.User{
			ID:        uuid.New(),
			Username:  r.Username,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Role:      defaultRole,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			return err // username uniqueness bubbles up from the constraint
		}
		if err := tx.Credentials().Upsert(ctx, &domain.PasswordCredential{
			UserID:      u.ID,
			Algo:        algo,
			Hash:        hash,
			Salt:        salt,
			ParamsJSON:  params,
			PasswordVer: ver,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		out = dto.RegisterResponse{UserID: u.ID.String()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.sink.Record(ctx, audit.Event{
		Category: audit.CategoryAuth,
		Action:   "register",
		Reason:   "success",
		Severity: audit.SeverityLow,
	})
	return &out, nil
}

// Login verifies credentials, opens a session, and issues a token pair. All
// failure paths return domain.ErrInvalidCredentials so callers cannot
// distinguish an unknown username from a wrong password.
func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest, ip, userAgent string) (*dto.LoginResponse, error) {
	result := "failure"
	defer func() {
		metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	}()

	deny := func(reason string, userID *domain.UserID) (*dto.LoginResponse, error) {
		a.sink.Record(ctx, audit.Event{
			Category:  audit.CategoryAuth,
			Action:    "login",
			Reason:    reason,
			Severity:  audit.SeverityMedium,
			UserID:    userID,
			IP:        ip,
			UserAgent: userAgent,
		})
		return nil, domain.ErrInvalidCredentials
	}

	if r.Username == "" || r.Password == "" {
		return deny("empty credentials", nil)
	}

	user, err := a.users.GetByUsername(ctx, r.Username)
	if err != nil {
		return deny("unknown username", nil)
	}
	if !user.IsActive {
		return deny("account disabled", &user.ID)
	}

	cred, err := a.credentials.GetByUserID(ctx, user.ID)
	if err != nil {
		return deny("no credential on record", &user.ID)
	}
	rehash, ok := a.passwords.Verify(r.Password, cred)
	if !ok {
		return deny("password mismatch", &user.ID)
	}
	if rehash {
		a.rehash(ctx, user.ID, r.Password)
	}

	sessionToken, err := a.sessions.Create(ctx, user.ID, ip, userAgent, nil)
	if err != nil {
		return nil, err
	}
	access, err := a.tokens.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, err
	}
	refresh, _, err := a.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	result = "success"
	a.sink.Record(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		Action:    "login",
		Reason:    "success",
		Severity:  audit.SeverityLow,
		UserID:    &user.ID,
		IP:        ip,
		UserAgent: userAgent,
	})
	slog.Info("user logged in", "user_id", user.ID, "ip", ip)

	resp := &dto.LoginResponse{
		SessionToken: sessionToken,
		UserID:       user.ID.String(),
	}
	resp.AccessToken = access
	resp.RefreshToken = refresh
	return resp, nil
}

// rehash upgrades a credential stored under older parameters. The login
// already succeeded; an upgrade failure is logged and otherwise ignored.
func (a *AuthServiceImpl) rehash(ctx context.Context, userID domain.UserID, password string) {
	hash, salt, params, algo, ver, err := a.passwords.Hash(password)
	if err != nil {
		slog.Warn("credential rehash failed", "user_id", userID, "error", err)
		return
	}
	err = a.credentials.Upsert(ctx, &domain.PasswordCredential{
		UserID:      userID,
		Algo:        algo,
		Hash:        hash,
		Salt:        salt,
		ParamsJSON:  params,
		PasswordVer: ver,
	})
	if err != nil {
		slog.Warn("credential rehash write failed", "user_id", userID, "error", err)
	}
}

// Logout revokes the refresh token and tears down the session. Both halves
// are attempted even if one fails.
func (a *AuthServiceImpl) Logout(ctx context.Context, refreshToken, sessionToken string) error {
	var firstErr error

	if refreshToken != "" {
		claims, err := a.tokens.Validate(refreshToken)
		if err == nil && claims.Kind == domain.TokenKindRefresh {
			if err := a.tokens.Revoke(ctx, claims.ID); err != nil {
				firstErr = err
			}
		}
	}
	if sessionToken != "" {
		if err := a.sessions.Invalidate(ctx, sessionToken); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.sink.Record(ctx, audit.Event{
		Category: audit.CategoryAuth,
		Action:   "logout",
		Reason:   "client request",
		Severity: audit.SeverityLow,
	})
	return firstErr
}
