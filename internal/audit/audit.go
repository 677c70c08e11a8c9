package audit

import (
	"context"
	"log/slog"
	"time"

	"secgate/internal/domain"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CategoryAuth       = "authentication"
	CategoryAuthz      = "authorization"
	CategoryCSRF       = "csrf"
	CategoryValidation = "validation"
	CategoryRateLimit  = "rate_limit"
	CategorySecurity   = "security_violation"
	CategoryAccess     = "access"
	CategorySession    = "session"
)

type Event struct {
	Category  string
	Action    string
	Reason    string
	Severity  Severity
	UserID    *domain.UserID
	IP        string
	UserAgent string
	Target    string
	Metadata  map[string]any
	At        time.Time
}

// Sink accepts structured security events. Implementations must not block
// request handling on failure; recording is best effort, rejection is not.
type Sink interface {
	Record(ctx context.Context, e Event)
}

type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	attrs := []any{
		"category", e.Category,
		"action", e.Action,
		"reason", e.Reason,
		"severity", string(e.Severity),
		"ip", e.IP,
		"target", e.Target,
	}
	if e.UserID != nil {
		attrs = append(attrs, "user_id", e.UserID.String())
	}
	if e.UserAgent != "" {
		attrs = append(attrs, "user_agent", e.UserAgent)
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, "meta_"+k, v)
	}
	if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
		s.log.WarnContext(ctx, "security event", attrs...)
		return
	}
	s.log.InfoContext(ctx, "security event", attrs...)
}

// Fanout records to every sink in order.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, e Event) {
	for _, s := range f {
		s.Record(ctx, e)
	}
}

// Discard drops every event; used in tests.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}
