package service

import "context"

type CSRFService interface {
	// Issue mints a token bound to the session and action. The per-session
	// collection is capped; the oldest entry is evicted on overflow.
	Issue(ctx context.Context, sessionToken, action string) (string, error)
	// Validate fails on unknown token, expiry, action mismatch, or reuse of
	// a single-use token. On single-use success the token is consumed.
	Validate(ctx context.Context, sessionToken, token, action string, singleUse bool) error
}
