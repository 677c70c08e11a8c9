package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"secgate/internal/audit"
	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/netutil"
	"secgate/internal/store"
)

type SessionConfig struct {
	TTL        time.Duration // session lifetime, e.g. 1h
	MaxPerUser int           // active-session cap, e.g. 5
}

type sessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Invalidate(ctx context.Context, id uuid.UUID, at time.Time) error
	InvalidateByToken(ctx context.Context, token string, at time.Time) error
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID, exceptToken string, at time.Time) (int64, error)
	ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error)
	ActiveForUserLocked(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error)
	CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
}

type userStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type sessionDataStore interface {
	WithTx(ctx context.Context, fn func(tx sessionTx) error) error
	Sessions() sessionStore
	Users() userStore
}

type sessionTx interface {
	Sessions() sessionStore
}

type SessionServiceImpl struct {
	cfg   SessionConfig
	store sessionDataStore
	sink  audit.Sink
	now   func() time.Time
}

func NewSessionServiceImpl(cfg SessionConfig, st *store.Store, sink audit.Sink) *SessionServiceImpl {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &SessionServiceImpl{
		cfg:   cfg,
		store: gormSessionStoreAdapter{store: st},
		sink:  sink,
		now:   time.Now,
	}
}

type gormSessionStoreAdapter struct{ store *store.Store }

func (g gormSessionStoreAdapter) WithTx(ctx context.Context, fn func(tx sessionTx) error) error {
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormSessionTxAdapter{tx: tx})
	})
}

func (g gormSessionStoreAdapter) Sessions() sessionStore { return g.store.Sessions() }
func (g gormSessionStoreAdapter) Users() userStore       { return g.store.Users() }

type gormSessionTxAdapter struct{ tx *store.Store }

func (g gormSessionTxAdapter) Sessions() sessionStore { return g.tx.Sessions() }

func newSessionToken() (string, error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create runs reap, cap enforcement, and insert inside one transaction so
// two concurrent logins cannot both observe room under the cap.
func (s *SessionServiceImpl) Create(ctx context.Context, userID domain.UserID, ip, userAgent string, payload map[string]string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	userAgent = netutil.TruncateUserAgent(userAgent)

	err = s.store.WithTx(ctx, func(tx sessionTx) error {
		sessions := tx.Sessions()
		if _, err := sessions.ReapExpired(ctx, now); err != nil {
			return err
		}
		// The locked read serializes concurrent logins for the same user;
		// without it two transactions could both see room under the cap.
		active, err := sessions.ActiveForUserLocked(ctx, userID, now)
		if err != nil {
			return err
		}
		// active is ordered oldest-by-last-activity first.
		for i := 0; len(active)-i >= s.cfg.MaxPerUser; i++ {
			evicted := active[i]
			if err := sessions.Invalidate(ctx, evicted.ID, now); err != nil {
				return err
			}
			s.sink.Record(ctx, audit.Event{
				Category: audit.CategorySession,
				Action:   "evict",
				Reason:   "session cap reached",
				Severity: audit.SeverityLow,
				UserID:   &userID,
				IP:       evicted.IPAddress,
			})
		}
		return sessions.Create(ctx, &domain.Session{
			ID:           uuid.New(),
			UserID:       userID,
			SessionToken: token,
			IPAddress:    ip,
			UserAgent:    userAgent,
			DeviceInfo:   domain.ParseUserAgent(userAgent),
			SessionData:  payload,
			CreatedAt:    now,
			LastActivity: now,
			ExpiresAt:    now.Add(s.cfg.TTL),
			IsActive:     true,
		})
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *SessionServiceImpl) Validate(ctx context.Context, sessionToken string) (*dto.SessionView, error) {
	now := s.now().UTC()
	sess, err := s.store.Sessions().GetByToken(ctx, sessionToken)
	if err != nil {
		return nil, domain.ErrSessionInvalid
	}
	if !sess.IsActive || now.After(sess.ExpiresAt) {
		return nil, domain.ErrSessionInvalid
	}
	user, err := s.store.Users().GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, domain.ErrSessionInvalid
	}
	if !user.IsActive {
		// The owning account went away; the session must not outlive it.
		if err := s.store.Sessions().Invalidate(ctx, sess.ID, now); err != nil {
			slog.Warn("failed to invalidate orphaned session", "session_id", sess.ID, "error", err)
		}
		s.sink.Record(ctx, audit.Event{
			Category: audit.CategorySession,
			Action:   "invalidate",
			Reason:   "owning account inactive",
			Severity: audit.SeverityMedium,
			UserID:   &sess.UserID,
			IP:       sess.IPAddress,
		})
		return nil, domain.ErrSessionInvalid
	}
	// Best effort; a lost update only skews the idle-timeout bookkeeping.
	if err := s.store.Sessions().Touch(ctx, sess.ID, now); err != nil {
		slog.Debug("last-activity update failed", "session_id", sess.ID, "error", err)
	}
	return &dto.SessionView{
		UserID:       user.ID,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
		Territories:  user.Territories,
		Permissions:  user.Permissions,
		SessionToken: sess.SessionToken,
		Payload:      sess.SessionData,
		DeviceInfo:   sess.DeviceInfo,
		IPAddress:    sess.IPAddress,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

func (s *SessionServiceImpl) Invalidate(ctx context.Context, sessionToken string) error {
	return s.store.Sessions().InvalidateByToken(ctx, sessionToken, s.now().UTC())
}

func (s *SessionServiceImpl) InvalidateAll(ctx context.Context, userID domain.UserID, exceptToken string) (int64, error) {
	return s.store.Sessions().InvalidateAllForUser(ctx, userID, exceptToken, s.now().UTC())
}

func (s *SessionServiceImpl) List(ctx context.Context, userID domain.UserID, currentToken string) ([]dto.SessionSummary, error) {
	active, err := s.store.Sessions().ActiveForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	out := make([]dto.SessionSummary, 0, len(active))
	for _, sess := range active {
		out = append(out, dto.SessionSummary{
			ID:           sess.ID.String(),
			IPAddress:    sess.IPAddress,
			DeviceInfo:   sess.DeviceInfo,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity,
			Current:      sess.SessionToken == currentToken,
		})
	}
	return out, nil
}

const (
	suspiciousDistinctIPs    = 2
	suspiciousRecentSessions = 3
	suspiciousRecentWindow   = 10 * time.Minute
)

// DetectSuspicious is advisory; findings are recorded but never block.
func (s *SessionServiceImpl) DetectSuspicious(ctx context.Context, userID domain.UserID) ([]dto.Finding, error) {
	now := s.now().UTC()
	active, err := s.store.Sessions().ActiveForUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	var findings []dto.Finding

	ips := make(map[string]struct{})
	for _, sess := range active {
		ips[sess.IPAddress] = struct{}{}
	}
	if len(ips) > suspiciousDistinctIPs {
		findings = append(findings, dto.Finding{
			Severity: string(audit.SeverityMedium),
			Kind:     "multiple_ips",
			Detail:   fmt.Sprintf("%d distinct IPs across active sessions", len(ips)),
		})
	}

	recent, err := s.store.Sessions().CountCreatedSince(ctx, userID, now.Add(-suspiciousRecentWindow))
	if err != nil {
		return findings, err
	}
	if recent > suspiciousRecentSessions {
		findings = append(findings, dto.Finding{
			Severity: string(audit.SeverityHigh),
			Kind:     "rapid_session_creation",
			Detail:   fmt.Sprintf("%d sessions created in the last %s", recent, suspiciousRecentWindow),
		})
	}

	for _, f := range findings {
		s.sink.Record(ctx, audit.Event{
			Category: audit.CategorySession,
			Action:   "suspicious_activity",
			Reason:   f.Kind,
			Severity: audit.Severity(f.Severity),
			UserID:   &userID,
			Metadata: map[string]any{"detail": f.Detail},
		})
	}
	return findings, nil
}

func (s *SessionServiceImpl) ReapExpired(ctx context.Context) (int64, error) {
	return s.store.Sessions().ReapExpired(ctx, s.now().UTC())
}
