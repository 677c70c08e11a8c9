package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"secgate/internal/audit"
	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/observability/metrics"
	"secgate/internal/ratelimit"
	"secgate/internal/service"
	"secgate/internal/validate"
)

// RouteRoles maps a path prefix to the roles allowed through it. Longest
// matching prefix wins.
type RouteRoles struct {
	Prefix string
	Roles  []string
}

// RouteRules binds a validation ruleset to one endpoint, matched by exact
// method and path.
type RouteRules struct {
	Method string
	Path   string
	Set    validate.RuleSet
}

type Options struct {
	RateLimit       int
	RateLimitWindow time.Duration

	// PublicPrefixes skip the session and authorization gates entirely.
	PublicPrefixes []string
	// CSRFExempt skips the CSRF gate for endpoints that verify their own
	// credential, such as login and refresh.
	CSRFExempt []string
	Routes     []RouteRoles
	// Rules binds declarative field rulesets, built once at startup, to
	// individual endpoints. Gate four runs them over the sanitized
	// parameters.
	Rules []RouteRules

	AllowProxyHeaders bool
	// StrictMode blocks requests whose parameters fail sanitization instead
	// of forwarding the cleaned copy.
	StrictMode bool
	// BlockSuspicious turns advisory session findings into a 401.
	BlockSuspicious bool
}

type Pipeline struct {
	opts     Options
	limiter  ratelimit.Limiter
	tokens   service.TokenService
	sessions service.SessionService
	csrf     service.CSRFService
	engine   *validate.Engine
	sink     audit.Sink
	log      *slog.Logger
}

func New(opts Options, limiter ratelimit.Limiter, tokens service.TokenService, sessions service.SessionService, csrf service.CSRFService, engine *validate.Engine, sink audit.Sink, log *slog.Logger) *Pipeline {
	if sink == nil {
		sink = audit.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		opts:     opts,
		limiter:  limiter,
		tokens:   tokens,
		sessions: sessions,
		csrf:     csrf,
		engine:   engine,
		sink:     sink,
		log:      log,
	}
}

// block captures a terminal gate decision.
type block struct {
	status     int
	errName    string
	message    string
	category   string
	reason     string
	severity   audit.Severity
	retryAfter time.Duration
}

// Middleware runs the gates in fixed order; the first non-pass decision is
// terminal. A panic inside any gate fails closed with a 500.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				p.log.Error("panic inside security pipeline", "panic", rec, "path", r.URL.Path)
				p.sink.Record(r.Context(), audit.Event{
					Category: audit.CategorySecurity,
					Action:   "pipeline_panic",
					Reason:   "internal error",
					Severity: audit.SeverityCritical,
					Target:   r.URL.Path,
				})
				metrics.SecurityViolationsTotal.WithLabelValues(audit.CategorySecurity).Inc()
				writeBlock(w, r, http.StatusInternalServerError, "InternalSecurityError", "An internal error occurred while checking this request.", 0)
			}
		}()

		rc := buildRequestContext(r, p.opts.AllowProxyHeaders)

		type gate struct {
			name string
			run  func(ctx context.Context, rc *RequestContext) *block
		}
		var view *dto.SessionView
		var claims *domain.TokenClaims
		gates := []gate{
			{"headers", p.gateHeaders},
			{"rate_limit", p.gateRateLimit},
			{"csrf", func(ctx context.Context, rc *RequestContext) *block {
				b, c := p.gateCSRF(ctx, rc)
				claims = c
				return b
			}},
			{"input_validation", p.gateInput},
			{"session", func(ctx context.Context, rc *RequestContext) *block {
				b, v := p.gateSession(ctx, rc, claims)
				view = v
				return b
			}},
			{"authorization", func(ctx context.Context, rc *RequestContext) *block {
				return p.gateAuthorize(ctx, rc, view, claims)
			}},
		}

		for _, g := range gates {
			if b := g.run(r.Context(), rc); b != nil {
				metrics.GateOutcomesTotal.WithLabelValues(g.name, "block").Inc()
				metrics.SecurityViolationsTotal.WithLabelValues(b.category).Inc()
				var userID *domain.UserID
				if view != nil {
					userID = &view.UserID
				}
				p.sink.Record(r.Context(), audit.Event{
					Category:  b.category,
					Action:    "block",
					Reason:    b.reason,
					Severity:  b.severity,
					UserID:    userID,
					IP:        rc.ClientIP,
					UserAgent: rc.UserAgent,
					Target:    rc.Method + " " + rc.Path,
				})
				writeBlock(w, r, b.status, b.errName, b.message, b.retryAfter)
				return
			}
			metrics.GateOutcomesTotal.WithLabelValues(g.name, "pass").Inc()
		}

		ctx := context.WithValue(r.Context(), ctxKeyParams, rc.Params)
		if view != nil {
			ctx = context.WithValue(ctx, ctxKeySession, view)
		}
		if claims != nil {
			ctx = context.WithValue(ctx, ctxKeyClaims, claims)
		}
		var userID *domain.UserID
		if view != nil {
			userID = &view.UserID
		}
		p.sink.Record(ctx, audit.Event{
			Category:  audit.CategoryAccess,
			Action:    "allow",
			Reason:    "all gates passed",
			Severity:  audit.SeverityLow,
			UserID:    userID,
			IP:        rc.ClientIP,
			UserAgent: rc.UserAgent,
			Target:    rc.Method + " " + rc.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *Pipeline) gateHeaders(_ context.Context, rc *RequestContext) *block {
	if rc.r.Host == "" || rc.UserAgent == "" {
		return &block{
			status:   http.StatusBadRequest,
			errName:  "ValidationError",
			message:  "Required request headers are missing.",
			category: audit.CategoryValidation,
			reason:   "missing required headers",
			severity: audit.SeverityLow,
		}
	}
	if !p.opts.AllowProxyHeaders {
		if rc.r.Header.Get("X-Forwarded-For") != "" || rc.r.Header.Get("X-Real-IP") != "" {
			p.log.Warn("untrusted proxy headers present",
				"ip", rc.ClientIP,
				"path", rc.Path,
			)
		}
	}
	return nil
}

func (p *Pipeline) gateRateLimit(ctx context.Context, rc *RequestContext) *block {
	allowed, retryAfter, err := p.limiter.Allow(ctx, rc.ClientIP, p.opts.RateLimit, p.opts.RateLimitWindow)
	if err != nil {
		// Limiter backend failure fails closed.
		p.log.Error("rate limiter unavailable", "error", err)
		return &block{
			status:   http.StatusTooManyRequests,
			errName:  "RateLimitExceeded",
			message:  "Too many requests.",
			category: audit.CategoryRateLimit,
			reason:   "limiter backend error",
			severity: audit.SeverityHigh,
		}
	}
	if !allowed {
		return &block{
			status:     http.StatusTooManyRequests,
			errName:    "RateLimitExceeded",
			message:    "Too many requests. Try again later.",
			category:   audit.CategoryRateLimit,
			reason:     "limit exceeded",
			severity:   audit.SeverityMedium,
			retryAfter: retryAfter,
		}
	}
	return nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// gateCSRF also verifies any bearer token as a side effect: a request with a
// verified API credential is exempt, and the verified claims carry forward
// to the authorization gate.
func (p *Pipeline) gateCSRF(ctx context.Context, rc *RequestContext) (*block, *domain.TokenClaims) {
	var claims *domain.TokenClaims
	if rc.BearerToken != "" {
		c, err := p.tokens.Validate(rc.BearerToken)
		if err == nil && c.Kind == domain.TokenKindAccess {
			if revoked, _ := p.tokens.IsRevoked(ctx, c.ID); !revoked {
				claims = c
			}
		}
	}

	if isSafeMethod(rc.Method) || claims != nil || hasPrefix(p.opts.CSRFExempt, rc.Path) {
		return nil, claims
	}

	if rc.SessionToken == "" || rc.CSRFToken == "" {
		return &block{
			status:   http.StatusForbidden,
			errName:  "CSRFViolation",
			message:  "Request is missing a valid CSRF token.",
			category: audit.CategoryCSRF,
			reason:   "token absent",
			severity: audit.SeverityMedium,
		}, claims
	}
	action := csrfAction(rc.Method, rc.Path)
	if err := p.csrf.Validate(ctx, rc.SessionToken, rc.CSRFToken, action, true); err != nil {
		return &block{
			status:   http.StatusForbidden,
			errName:  "CSRFViolation",
			message:  "CSRF validation failed.",
			category: audit.CategoryCSRF,
			reason:   "token rejected",
			severity: audit.SeverityMedium,
		}, claims
	}
	return nil, claims
}

// csrfAction derives the bound action name for a state-changing request.
func csrfAction(method, path string) string {
	return strings.ToLower(method) + " " + path
}

func (p *Pipeline) gateInput(ctx context.Context, rc *RequestContext) *block {
	// Every value ever carried for a key is scanned, so a repeated query
	// parameter or a nested JSON field cannot smuggle content past the
	// gate inside a later value.
	for field, values := range rc.Values {
		for _, value := range values {
			if label, found := validate.ScanDangerous(value); found {
				return &block{
					status:   http.StatusBadRequest,
					errName:  "SecurityViolation",
					message:  "Request contains disallowed content.",
					category: audit.CategorySecurity,
					reason:   "dangerous content in field " + field + " (" + label + ")",
					severity: audit.SeverityHigh,
				}
			}
		}
	}

	cleaned := p.engine.SanitizeMap(ctx, rc.Params, validate.ContextGeneral)
	if p.opts.StrictMode {
		for field, value := range rc.Params {
			if cleaned[field] != value {
				return &block{
					status:   http.StatusBadRequest,
					errName:  "ValidationError",
					message:  "Request parameters failed validation.",
					category: audit.CategoryValidation,
					reason:   "field altered by sanitizer: " + field,
					severity: audit.SeverityMedium,
				}
			}
		}
	}
	if set, ok := p.rulesFor(rc.Method, rc.Path); ok {
		if violations := p.engine.Validate(ctx, cleaned, set); len(violations) > 0 {
			fields := make([]string, 0, len(violations))
			for f := range violations {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			return &block{
				status:   http.StatusBadRequest,
				errName:  "ValidationError",
				message:  "Request parameters failed validation.",
				category: audit.CategoryValidation,
				reason:   "rule violations: " + strings.Join(fields, ", "),
				severity: audit.SeverityMedium,
			}
		}
	}

	rc.Params = cleaned
	return nil
}

// rulesFor finds the startup-loaded ruleset bound to this endpoint, if any.
func (p *Pipeline) rulesFor(method, path string) (validate.RuleSet, bool) {
	for _, r := range p.opts.Rules {
		if r.Method == method && r.Path == path {
			return r.Set, true
		}
	}
	return nil, false
}

func (p *Pipeline) gateSession(ctx context.Context, rc *RequestContext, claims *domain.TokenClaims) (*block, *dto.SessionView) {
	if hasPrefix(p.opts.PublicPrefixes, rc.Path) {
		return nil, nil
	}
	// A verified bearer token is a full API credential on its own.
	if claims != nil && rc.SessionToken == "" {
		return nil, nil
	}

	unauthorized := func(reason string) *block {
		return &block{
			status:   http.StatusUnauthorized,
			errName:  "AuthenticationError",
			message:  "A valid session is required.",
			category: audit.CategoryAuth,
			reason:   reason,
			severity: audit.SeverityMedium,
		}
	}

	if rc.SessionToken == "" {
		return unauthorized("no session token"), nil
	}
	view, err := p.sessions.Validate(ctx, rc.SessionToken)
	if err != nil {
		return unauthorized("session invalid or expired"), nil
	}
	if view.IPAddress != "" && rc.ClientIP != "" && view.IPAddress != rc.ClientIP {
		// Hijack heuristic: the session dies with the mismatch.
		if err := p.sessions.Invalidate(ctx, rc.SessionToken); err != nil {
			p.log.Warn("failed to invalidate hijack-suspect session", "error", err)
		}
		p.sink.Record(ctx, audit.Event{
			Category:  audit.CategorySecurity,
			Action:    "session_hijack_suspected",
			Reason:    "client IP differs from session origin",
			Severity:  audit.SeverityHigh,
			UserID:    &view.UserID,
			IP:        rc.ClientIP,
			UserAgent: rc.UserAgent,
			Target:    rc.Path,
		})
		metrics.SecurityViolationsTotal.WithLabelValues(audit.CategorySecurity).Inc()
		return unauthorized("session origin mismatch"), nil
	}

	if p.opts.BlockSuspicious {
		findings, err := p.sessions.DetectSuspicious(ctx, view.UserID)
		if err == nil {
			for _, f := range findings {
				if f.Severity == string(audit.SeverityHigh) {
					return unauthorized("suspicious session activity: " + f.Kind), view
				}
			}
		}
	}
	return nil, view
}

func (p *Pipeline) gateAuthorize(_ context.Context, rc *RequestContext, view *dto.SessionView, claims *domain.TokenClaims) *block {
	if hasPrefix(p.opts.PublicPrefixes, rc.Path) {
		return nil
	}
	allowed, guarded := p.rolesFor(rc.Path)
	if !guarded {
		return nil
	}

	role := ""
	switch {
	case view != nil:
		role = view.Role
	case claims != nil:
		role = claims.Role
	}

	forbidden := &block{
		status:   http.StatusForbidden,
		errName:  "AuthorizationError",
		message:  "You do not have access to this resource.",
		category: audit.CategoryAuthz,
		reason:   "role not permitted for route",
		severity: audit.SeverityMedium,
	}
	if role == "" {
		return forbidden
	}
	for _, a := range allowed {
		if a == role {
			return nil
		}
	}
	return forbidden
}

// rolesFor returns the allowed roles for the longest matching route prefix.
func (p *Pipeline) rolesFor(path string) ([]string, bool) {
	best := -1
	var roles []string
	for _, route := range p.opts.Routes {
		if strings.HasPrefix(path, route.Prefix) && len(route.Prefix) > best {
			best = len(route.Prefix)
			roles = route.Roles
		}
	}
	return roles, best >= 0
}

func hasPrefix(prefixes []string, path string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(path, pre) {
			return true
		}
	}
	return false
}
