package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"secgate/internal/audit"
	"secgate/internal/domain"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) Audit() *AuditStore { return &AuditStore{s.DB} }

func (as *AuditStore) Append(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == ([16]byte{}) {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return as.db.WithContext(ctx).Create(entry).Error
}

// AuditSink adapts the store into an audit.Sink. Persistence failures are
// logged and dropped; the request outcome never depends on the audit write.
type AuditSink struct {
	store *AuditStore
	log   *slog.Logger
}

func NewAuditSink(s *Store, log *slog.Logger) *AuditSink {
	if log == nil {
		log = slog.Default()
	}
	return &AuditSink{store: s.Audit(), log: log}
}

func (s *AuditSink) Record(ctx context.Context, e audit.Event) {
	var meta []byte
	if len(e.Metadata) > 0 {
		meta, _ = json.Marshal(e.Metadata)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := &domain.AuditLog{
		UserID:    e.UserID,
		Category:  e.Category,
		Action:    e.Action,
		Reason:    e.Reason,
		Severity:  string(e.Severity),
		Target:    e.Target,
		Metadata:  meta,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: at,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.log.Error("audit append failed", "category", e.Category, "action", e.Action, "error", err)
	}
}
