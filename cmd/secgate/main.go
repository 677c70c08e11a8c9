package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"secgate/internal/audit"
	"secgate/internal/config"
	"secgate/internal/observability/logging"
	"secgate/internal/observability/metrics"
	"secgate/internal/pipeline"
	"secgate/internal/ratelimit"
	"secgate/internal/revocation"
	impl "secgate/internal/service/impl"
	"secgate/internal/sqlbuilder"
	"secgate/internal/store"
	httpx "secgate/internal/transport/http"
	"secgate/internal/validate"
	"secgate/pkg/db"
)

const serviceName = "secgate"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	logger.Info("starting service")

	metrics.MustRegister(serviceName)

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)

	sink := audit.Fanout{
		audit.NewLogSink(logger),
		store.NewAuditSink(st, logger),
	}

	// Redis backs the limiter and the revocation blacklist when configured;
	// otherwise both fall back to in-process state, which is fine for a
	// single replica.
	var limiter ratelimit.Limiter = ratelimit.NewLocal()
	var blacklist revocation.Blacklist = revocation.NewMemory()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("redis url", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis ping", "error", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewRedis(client, serviceName)
		blacklist = revocation.NewRedis(client, serviceName)
		logger.Info("redis connected")
	}

	tokens := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		SigningKey: []byte(cfg.SigningKey),
	}, st.Users(), blacklist)

	sessions := impl.NewSessionServiceImpl(impl.SessionConfig{
		TTL:        cfg.SessionTimeout,
		MaxPerUser: cfg.MaxSessionsPerUser,
	}, st, sink)

	csrf := impl.NewCSRFGuardImpl(impl.CSRFConfig{
		Lifetime:      cfg.CSRFLifetime,
		MaxPerSession: cfg.CSRFMaxPerSession,
	}, sink)

	passwords := impl.NewPasswordServiceArgon2id()
	auth := impl.NewAuthServiceImpl(st, passwords, tokens, sessions, sink)

	whitelist := sqlbuilder.NewIntrospector(gdb)
	executor := sqlbuilder.NewExecutor(gdb, logger)
	engine := validate.NewEngine(st.FieldLookup(executor, whitelist), sink, logger)

	pipe := pipeline.New(pipeline.Options{
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
		PublicPrefixes:  []string{"/healthz", "/metrics", "/api/auth/"},
		CSRFExempt:      []string{"/api/auth/register", "/api/auth/login", "/api/auth/refresh", "/api/auth/logout"},
		Routes: []pipeline.RouteRoles{
			{Prefix: "/api/admin", Roles: []string{"admin"}},
		},
		// Declarative field rules, built once here and run by the input
		// gate. The register ruleset checks username uniqueness through
		// the whitelist-validated query builder.
		Rules: []pipeline.RouteRules{
			{Method: http.MethodPost, Path: "/api/auth/register", Set: validate.RuleSet{
				"username":  {validate.Required(), validate.Pattern("username"), validate.Unique("users", "username")},
				"password":  {validate.Required(), validate.MinLen(8), validate.MaxLen(1024)},
				"firstName": {validate.MaxLen(100)},
				"lastName":  {validate.MaxLen(100)},
			}},
			{Method: http.MethodPost, Path: "/api/auth/login", Set: validate.RuleSet{
				"username": {validate.Required(), validate.MaxLen(64)},
				"password": {validate.Required(), validate.MaxLen(1024)},
			}},
			{Method: http.MethodPost, Path: "/api/auth/refresh", Set: validate.RuleSet{
				"refreshToken": {validate.Required()},
			}},
		},
		AllowProxyHeaders: cfg.AllowProxyHeaders,
		StrictMode:        cfg.StrictMode,
		BlockSuspicious:   cfg.BlockSuspicious,
	}, limiter, tokens, sessions, csrf, engine, sink, logger)

	// Background reaper: expired sessions are flipped inactive so the cap
	// and listing queries stay honest even for idle users.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sessions.ReapExpired(context.Background())
			if err != nil {
				logger.Warn("session reaper", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("reaped expired sessions", "count", n)
			}
		}
	}()

	router := httpx.NewRouter(httpx.RouterConfig{
		SessionTTL:  cfg.SessionTimeout,
		CSRFTTL:     cfg.CSRFLifetime,
		TrustProxy:  cfg.AllowProxyHeaders,
		SecureCooks: cfg.Environment == "production",
	}, pipe, auth, tokens, sessions, csrf)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("listening", "addr", srv.Addr, "issuer", cfg.Issuer)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
