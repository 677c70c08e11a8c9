package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"secgate/internal/observability/middleware"
	"secgate/internal/pipeline"
	"secgate/internal/service"
)

type RouterConfig struct {
	SessionTTL  time.Duration
	CSRFTTL     time.Duration
	TrustProxy  bool
	SecureCooks bool
}

// NewRouter mounts the API behind the security pipeline. Everything except
// /healthz and /metrics passes through every gate.
func NewRouter(
	cfg RouterConfig,
	p *pipeline.Pipeline,
	auth service.AuthService,
	tokens service.TokenService,
	sessions service.SessionService,
	csrf service.CSRFService,
) http.Handler {
	h := &Handler{
		auth:       auth,
		tokens:     tokens,
		sessions:   sessions,
		csrf:       csrf,
		cookies:    &CookieManager{Secure: cfg.SecureCooks},
		sessionTTL: cfg.SessionTTL,
		csrfTTL:    cfg.CSRFTTL,
		trustProxy: cfg.TrustProxy,
	}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(p.Middleware)

		r.Post("/api/auth/register", h.register)
		r.Post("/api/auth/login", h.login)
		r.Post("/api/auth/refresh", h.refresh)
		r.Post("/api/auth/logout", h.logout)

		r.Get("/api/csrf", h.issueCSRF)
		r.Get("/api/sessions", h.listSessions)
		r.Post("/api/sessions/revoke", h.revokeSessions)
	})

	return r
}
