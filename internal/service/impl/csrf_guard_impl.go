package impl

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"secgate/internal/audit"
	"secgate/internal/domain"
)

type CSRFConfig struct {
	Lifetime      time.Duration // per-token validity, e.g. 1h
	MaxPerSession int           // live tokens per session, e.g. 10
}

type csrfToken struct {
	value    string
	action   string
	issuedAt time.Time
	expires  time.Time
}

// CSRFGuardImpl keeps per-session token collections in process memory.
// Tokens are opaque to clients; sessions that die take their tokens with
// them on the next prune pass.
type CSRFGuardImpl struct {
	cfg  CSRFConfig
	sink audit.Sink
	now  func() time.Time

	mu        sync.Mutex
	sessions  map[string][]csrfToken
	lastPrune time.Time
}

const csrfPruneInterval = time.Minute

func NewCSRFGuardImpl(cfg CSRFConfig, sink audit.Sink) *CSRFGuardImpl {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &CSRFGuardImpl{
		cfg:      cfg,
		sink:     sink,
		now:      time.Now,
		sessions: make(map[string][]csrfToken),
	}
}

func (g *CSRFGuardImpl) Issue(ctx context.Context, sessionToken, action string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)
	now := g.now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(now)

	live := dropExpired(g.sessions[sessionToken], now)
	if len(live) >= g.cfg.MaxPerSession {
		// Oldest-first order is maintained on append, so evicting the head
		// always drops the oldest live token.
		live = live[1:]
	}
	g.sessions[sessionToken] = append(live, csrfToken{
		value:    value,
		action:   action,
		issuedAt: now,
		expires:  now.Add(g.cfg.Lifetime),
	})
	return value, nil
}

func (g *CSRFGuardImpl) Validate(ctx context.Context, sessionToken, token, action string, singleUse bool) error {
	now := g.now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(now)

	live := dropExpired(g.sessions[sessionToken], now)
	g.sessions[sessionToken] = live

	idx := -1
	for i, t := range live {
		if subtle.ConstantTimeCompare([]byte(t.value), []byte(token)) == 1 {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.record(ctx, action, "token unknown or expired")
		return domain.ErrCSRF
	}
	if live[idx].action != action {
		g.record(ctx, action, "action mismatch")
		return domain.ErrCSRF
	}
	if singleUse {
		g.sessions[sessionToken] = append(live[:idx], live[idx+1:]...)
	}
	g.sink.Record(ctx, audit.Event{
		Category: audit.CategoryCSRF,
		Action:   "validate",
		Reason:   "ok",
		Severity: audit.SeverityLow,
		Target:   action,
	})
	return nil
}

func (g *CSRFGuardImpl) record(ctx context.Context, action, reason string) {
	g.sink.Record(ctx, audit.Event{
		Category: audit.CategoryCSRF,
		Action:   "validate",
		Reason:   reason,
		Severity: audit.SeverityMedium,
		Target:   action,
	})
}

func dropExpired(tokens []csrfToken, now time.Time) []csrfToken {
	live := tokens[:0]
	for _, t := range tokens {
		if now.Before(t.expires) {
			live = append(live, t)
		}
	}
	return live
}

// pruneLocked sweeps away sessions whose tokens have all expired so the map
// does not grow with every session ever seen. Callers hold g.mu.
func (g *CSRFGuardImpl) pruneLocked(now time.Time) {
	if now.Sub(g.lastPrune) < csrfPruneInterval {
		return
	}
	g.lastPrune = now
	for key, tokens := range g.sessions {
		live := dropExpired(tokens, now)
		if len(live) == 0 {
			delete(g.sessions, key)
			continue
		}
		g.sessions[key] = live
	}
}
