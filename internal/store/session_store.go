package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secgate/internal/domain"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	return ss.db.WithContext(ctx).Create(sess).Error
}

func (ss *SessionStore) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	if err := ss.db.WithContext(ctx).First(&sess, "session_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// Touch refreshes last_activity. Best effort: a lost update under race only
// skews the informational timestamp, not any security decision.
func (ss *SessionStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Update("last_activity", at).Error
}

func (ss *SessionStore) Invalidate(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "invalidated_at": at}).Error
}

func (ss *SessionStore) InvalidateByToken(ctx context.Context, token string, at time.Time) error {
	return ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_token = ?", token).
		Updates(map[string]any{"is_active": false, "invalidated_at": at}).Error
}

func (ss *SessionStore) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, exceptToken string, at time.Time) (int64, error) {
	q := ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ? AND is_active", userID)
	if exceptToken != "" {
		q = q.Where("session_token <> ?", exceptToken)
	}
	tx := q.Updates(map[string]any{"is_active": false, "invalidated_at": at})
	return tx.RowsAffected, tx.Error
}

func (ss *SessionStore) ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := ss.db.WithContext(ctx).
		Where("user_id = ? AND is_active AND expires_at > ?", userID, now).
		Order("last_activity ASC").
		Find(&sessions).Error
	return sessions, err
}

// ActiveForUserLocked is the in-transaction variant for cap enforcement.
// FOR UPDATE serializes concurrent logins on the same user's rows, so two
// transactions cannot both count the active sessions before either inserts.
func (ss *SessionStore) ActiveForUserLocked(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := ss.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND is_active AND expires_at > ?", userID, now).
		Order("last_activity ASC").
		Find(&sessions).Error
	return sessions, err
}

func (ss *SessionStore) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

// ReapExpired deactivates sessions past their expiry. Rows stay behind as an
// audit trail.
func (ss *SessionStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	tx := ss.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("is_active AND expires_at <= ?", now).
		Updates(map[string]any{"is_active": false, "invalidated_at": now})
	return tx.RowsAffected, tx.Error
}
