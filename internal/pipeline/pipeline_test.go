package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"secgate/internal/audit"
	"secgate/internal/domain"
	"secgate/internal/dto"
	"secgate/internal/observability/metrics"
	"secgate/internal/ratelimit"
	"secgate/internal/validate"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("test")
	os.Exit(m.Run())
}

type stubTokens struct {
	valid   map[string]*domain.TokenClaims
	revoked map[string]bool
}

func (s *stubTokens) Validate(token string) (*domain.TokenClaims, error) {
	if c, ok := s.valid[token]; ok {
		return c, nil
	}
	return nil, domain.ErrTokenInvalid
}

func (s *stubTokens) IsRevoked(_ context.Context, jti string) (bool, error) {
	return s.revoked[jti], nil
}

func (s *stubTokens) IssueAccessToken(context.Context, *domain.User) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubTokens) IssueRefreshToken(context.Context, *domain.User) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (s *stubTokens) Revoke(context.Context, string) error { return nil }
func (s *stubTokens) Refresh(context.Context, string) (*dto.TokenResponse, error) {
	return nil, errors.New("not implemented")
}

type stubSessions struct {
	mu          sync.Mutex
	views       map[string]*dto.SessionView
	findings    []dto.Finding
	invalidated []string
	panicOnce   bool
}

func (s *stubSessions) Validate(_ context.Context, token string) (*dto.SessionView, error) {
	if s.panicOnce {
		s.panicOnce = false
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[token]; ok {
		return v, nil
	}
	return nil, domain.ErrSessionInvalid
}

func (s *stubSessions) Invalidate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, token)
	delete(s.views, token)
	return nil
}

func (s *stubSessions) Create(context.Context, domain.UserID, string, string, map[string]string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubSessions) InvalidateAll(context.Context, domain.UserID, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubSessions) List(context.Context, domain.UserID, string) ([]dto.SessionSummary, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSessions) DetectSuspicious(context.Context, domain.UserID) ([]dto.Finding, error) {
	return s.findings, nil
}

func (s *stubSessions) ReapExpired(context.Context) (int64, error) {
	return 0, errors.New("not implemented")
}

type stubCSRF struct {
	accept string
	calls  []string
}

func (s *stubCSRF) Issue(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubCSRF) Validate(_ context.Context, _, token, action string, _ bool) error {
	s.calls = append(s.calls, action)
	if token == s.accept {
		return nil
	}
	return domain.ErrCSRF
}

type fixture struct {
	pipeline *Pipeline
	tokens   *stubTokens
	sessions *stubSessions
	csrf     *stubCSRF
	userID   domain.UserID
}

func newFixture(opts Options) *fixture {
	userID := uuid.New()
	if opts.RateLimit == 0 {
		opts.RateLimit = 100
		opts.RateLimitWindow = time.Minute
	}
	tokens := &stubTokens{
		valid:   make(map[string]*domain.TokenClaims),
		revoked: make(map[string]bool),
	}
	tokens.valid["good-access"] = &domain.TokenClaims{
		Kind:             domain.TokenKindAccess,
		Role:             "agent",
		RegisteredClaims: jwt.RegisteredClaims{ID: "jti-access", Subject: userID.String()},
	}

	sessions := &stubSessions{views: map[string]*dto.SessionView{
		"sess-ok": {
			UserID:       userID,
			Username:     "jdoe",
			Role:         "agent",
			SessionToken: "sess-ok",
			IPAddress:    "192.0.2.1",
		},
	}}
	csrf := &stubCSRF{accept: "csrf-ok"}
	engine := validate.NewEngine(nil, audit.Discard{}, nil)

	p := New(opts, ratelimit.NewLocal(), tokens, sessions, csrf, engine, audit.Discard{}, nil)
	return &fixture{pipeline: p, tokens: tokens, sessions: sessions, csrf: csrf, userID: userID}
}

func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("handled"))
	})
}

func newRequest(method, target string, body string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("User-Agent", "pipeline-test/1.0")
	return r
}

func withSession(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-ok"})
	return r
}

func decodeBlock(t *testing.T, rec *httptest.ResponseRecorder) blockResponse {
	t.Helper()
	var b blockResponse
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode block response: %v", err)
	}
	return b
}

func TestPipelinePublicEndpointPasses(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/info", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestPipelineMissingUserAgentBlocked(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}})
	h := f.pipeline.Middleware(echoHandler(t))

	r := httptest.NewRequest(http.MethodGet, "/api/public/info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "ValidationError" {
		t.Errorf("error = %q, want ValidationError", b.Error)
	}
}

func TestPipelineRateLimit(t *testing.T) {
	f := newFixture(Options{
		PublicPrefixes:  []string{"/api/public"},
		RateLimit:       2,
		RateLimitWindow: time.Minute,
	})
	h := f.pipeline.Middleware(echoHandler(t))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/info", ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/info", ""))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	if b := decodeBlock(t, rec); b.Error != "RateLimitExceeded" {
		t.Errorf("error = %q, want RateLimitExceeded", b.Error)
	}
}

func TestPipelineCSRFRequiredForUnsafeMethods(t *testing.T) {
	f := newFixture(Options{})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodPost, "/api/things", `{"name":"x"}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "CSRFViolation" {
		t.Errorf("error = %q, want CSRFViolation", b.Error)
	}
}

func TestPipelineCSRFTokenAccepted(t *testing.T) {
	f := newFixture(Options{})
	h := f.pipeline.Middleware(echoHandler(t))

	r := withSession(newRequest(http.MethodPost, "/api/things", `{"name":"x"}`))
	r.Header.Set(csrfHeaderName, "csrf-ok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(f.csrf.calls) != 1 || f.csrf.calls[0] != "post /api/things" {
		t.Errorf("csrf calls = %v", f.csrf.calls)
	}
}

func TestPipelineBearerTokenExemptsCSRF(t *testing.T) {
	f := newFixture(Options{})
	h := f.pipeline.Middleware(echoHandler(t))

	r := newRequest(http.MethodPost, "/api/things", `{"name":"x"}`)
	r.Header.Set("Authorization", "Bearer good-access")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(f.csrf.calls) != 0 {
		t.Errorf("csrf guard consulted for bearer request: %v", f.csrf.calls)
	}
}

func TestPipelineRevokedBearerNotExempt(t *testing.T) {
	f := newFixture(Options{})
	f.tokens.revoked["jti-access"] = true
	h := f.pipeline.Middleware(echoHandler(t))

	r := newRequest(http.MethodPost, "/api/things", `{"name":"x"}`)
	r.Header.Set("Authorization", "Bearer good-access")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (revoked bearer must not bypass CSRF)", rec.Code)
	}
}

func TestPipelineDangerousContentBlocked(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/search?q=%3Cscript%3Ealert(1)%3C/script%3E", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "SecurityViolation" {
		t.Errorf("error = %q, want SecurityViolation", b.Error)
	}
}

func TestPipelineSanitizedParamsReachHandler(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}})
	var got map[string]string
	h := f.pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ParamsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/search?q=O%27Reilly+%26+Sons", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil {
		t.Fatal("handler saw no params")
	}
	if q := got["q"]; q != "O&#39;Reilly &amp; Sons" {
		t.Errorf("q = %q, want entity-encoded copy", q)
	}
}

func TestPipelineSessionRequired(t *testing.T) {
	f := newFixture(Options{})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/things", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "AuthenticationError" {
		t.Errorf("error = %q, want AuthenticationError", b.Error)
	}
}

func TestPipelineSessionAttachedToContext(t *testing.T) {
	f := newFixture(Options{})
	var view *dto.SessionView
	h := f.pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view = SessionFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/things", "")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if view == nil || view.UserID != f.userID {
		t.Errorf("session view = %+v", view)
	}
}

func TestPipelineSessionHijackDestroysSession(t *testing.T) {
	f := newFixture(Options{})
	f.sessions.views["sess-ok"].IPAddress = "198.51.100.99"
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/things", "")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.sessions.invalidated) != 1 || f.sessions.invalidated[0] != "sess-ok" {
		t.Errorf("invalidated = %v, want the mismatched session destroyed", f.sessions.invalidated)
	}
}

func TestPipelineAuthorizationByRoutePrefix(t *testing.T) {
	f := newFixture(Options{
		Routes: []RouteRoles{
			{Prefix: "/api/admin", Roles: []string{"admin"}},
			{Prefix: "/api", Roles: []string{"admin", "agent"}},
		},
	})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/things", "")))
	if rec.Code != http.StatusOK {
		t.Fatalf("agent on /api: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/admin/users", "")))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("agent on /api/admin: status = %d, want 403", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "AuthorizationError" {
		t.Errorf("error = %q, want AuthorizationError", b.Error)
	}
}

func TestPipelineBlockSuspicious(t *testing.T) {
	f := newFixture(Options{BlockSuspicious: true})
	f.sessions.findings = []dto.Finding{{Severity: string(audit.SeverityHigh), Kind: "rapid_session_creation"}}
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/things", "")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPipelinePanicFailsClosed(t *testing.T) {
	f := newFixture(Options{})
	f.sessions.panicOnce = true
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(newRequest(http.MethodGet, "/api/things", "")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "InternalSecurityError" {
		t.Errorf("error = %q, want InternalSecurityError", b.Error)
	}
}

func TestPipelineHTMLBlockPageForNonAPIPaths(t *testing.T) {
	f := newFixture(Options{})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/dashboard", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Incident ID") {
		t.Errorf("block page missing incident id: %s", body)
	}
}

func TestPipelineStrictModeBlocksAlteredParams(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}, StrictMode: true})
	h := f.pipeline.Middleware(echoHandler(t))

	// A raw ampersand is entity-encoded by the general sanitizer, which
	// strict mode treats as a validation failure.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet, "/api/public/search?q=a%26b", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPipelineRepeatedParamAllValuesScanned(t *testing.T) {
	f := newFixture(Options{PublicPrefixes: []string{"/api/public"}})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodGet,
		"/api/public/page?q=benign&q=%3Cscript%3Ealert(1)%3C%2Fscript%3E", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "SecurityViolation" {
		t.Errorf("error = %q, want SecurityViolation", b.Error)
	}
}

func TestPipelineNestedJSONFieldScanned(t *testing.T) {
	f := newFixture(Options{
		PublicPrefixes: []string{"/api/public"},
		CSRFExempt:     []string{"/api/public/submit"},
	})
	h := f.pipeline.Middleware(echoHandler(t))

	body := `{"profile":{"bio":"<script>alert(1)</script>"},"name":"fine"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/public/submit", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "SecurityViolation" {
		t.Errorf("error = %q, want SecurityViolation", b.Error)
	}
}

func TestPipelineRouteRulesetEnforced(t *testing.T) {
	f := newFixture(Options{
		PublicPrefixes: []string{"/api/auth/"},
		CSRFExempt:     []string{"/api/auth/register"},
		Rules: []RouteRules{{
			Method: http.MethodPost,
			Path:   "/api/auth/register",
			Set: validate.RuleSet{
				"username": {validate.Required(), validate.Pattern("username")},
				"password": {validate.Required(), validate.MinLen(8)},
			},
		}},
	})
	h := f.pipeline.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/auth/register",
		`{"username":"ok_user","password":"short"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for short password", rec.Code)
	}
	if b := decodeBlock(t, rec); b.Error != "ValidationError" {
		t.Errorf("error = %q, want ValidationError", b.Error)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/auth/register",
		`{"username":"ok_user","password":"longenoughpw"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

type recordingLookup struct {
	exists bool
	calls  int
}

func (l *recordingLookup) Exists(context.Context, string, string, string, string) (bool, error) {
	l.calls++
	return l.exists, nil
}

func TestPipelineUniqueRuleConsultsLookup(t *testing.T) {
	lookup := &recordingLookup{exists: true}
	engine := validate.NewEngine(lookup, audit.Discard{}, nil)
	opts := Options{
		RateLimit:       100,
		RateLimitWindow: time.Minute,
		PublicPrefixes:  []string{"/api/auth/"},
		CSRFExempt:      []string{"/api/auth/register"},
		Rules: []RouteRules{{
			Method: http.MethodPost,
			Path:   "/api/auth/register",
			Set:    validate.RuleSet{"username": {validate.Unique("users", "username")}},
		}},
	}
	tokens := &stubTokens{valid: map[string]*domain.TokenClaims{}, revoked: map[string]bool{}}
	sessions := &stubSessions{views: map[string]*dto.SessionView{}}
	p := New(opts, ratelimit.NewLocal(), tokens, sessions, &stubCSRF{}, engine, audit.Discard{}, nil)
	h := p.Middleware(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/auth/register", `{"username":"taken"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a taken username", rec.Code)
	}
	if lookup.calls == 0 {
		t.Fatal("the uniqueness lookup was never consulted")
	}

	lookup.exists = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/auth/register", `{"username":"free"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}
