package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"studio-intake/internal/audit"
	"studio-intake/internal/auth"
	"studio-intake/internal/crypto"
	"studio-intake/internal/db"
	"studio-intake/internal/intake"
	"studio-intake/internal/maintenance"
	"studio-intake/internal/observability"
	"studio-intake/internal/ratelimit"
	"studio-intake/internal/risk"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	fieldKey, err := mustEnv("FIELD_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	auditRepo := audit.NewRepository(database)
	recorder := audit.NewRecorder(auditRepo, logger)

	limitConfig := ratelimit.DefaultConfig()
	limitConfig.Enabled = EnvBoolOrDefault("RATE_LIMIT_ENABLED", true)
	limitConfig.Public.RequestsPerMinute = envIntOrDefault("PUBLIC_REQUESTS_PER_MINUTE", limitConfig.Public.RequestsPerMinute)
	limitConfig.Form.RequestsPerMinute = envIntOrDefault("FORM_REQUESTS_PER_MINUTE", limitConfig.Form.RequestsPerMinute)
	limitConfig.Login.RequestsPerMinute = envIntOrDefault("LOGIN_REQUESTS_PER_MINUTE", limitConfig.Login.RequestsPerMinute)
	limiter := ratelimit.NewLimiter(limitConfig, logger)
	limiter.OnReject(func(ip, method, path string) {
		recorder.LogSecurityEvent(audit.ActionRateLimitExceeded, method+" "+path, ip, "")
	})

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		SecretKey:        os.Getenv("TOKEN_SECRET_KEY"),
		Issuer:           envOrDefault("TOKEN_ISSUER", "studio-intake-api"),
		AccessTTL:        envMillisOrDefault("TOKEN_ACCESS_TTL_MS", 900000),
		RefreshTTL:       envMillisOrDefault("TOKEN_REFRESH_TTL_MS", 604800000),
		RequireStrongKey: EnvBoolOrDefault("TOKEN_REQUIRE_STRONG_KEY", envOrDefault("APP_ENV", "development") == "production"),
	}, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	accountStore := auth.NewRepository(database)
	lockout := auth.NewLockoutTracker(
		accountStore,
		envIntOrDefault("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
		envMinutesOrDefault("LOCKOUT_LOCK_DURATION_MINUTES", 30),
		logger,
	)
	authService := auth.NewService(accountStore, lockout, tokens, recorder, logger)
	authHandler := auth.NewHandler(authService)

	if username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME")); username != "" {
		if err := accountStore.UpsertAdmin(context.Background(), username,
			envOrDefault("ADMIN_EMAIL", username+"@localhost"),
			os.Getenv("ADMIN_PASSWORD"), "ADMIN"); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	cipher, err := crypto.NewFieldCipher(fieldKey)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init field cipher: %w", err)
	}

	riskClient, err := risk.NewClient(risk.Config{
		Enabled:   EnvBoolOrDefault("RISK_ENABLED", false),
		VerifyURL: os.Getenv("RISK_VERIFY_URL"),
		Secret:    os.Getenv("RISK_SECRET"),
		MinScore:  envFloatOrDefault("RISK_MIN_SCORE", 0.5),
	}, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init risk client: %w", err)
	}

	intakeRepo := intake.NewRepository(database)
	throttler := intake.NewThrottler(intakeRepo, envMinutesOrDefault("DUPLICATE_COOLDOWN_MINUTES", 10))
	intakeService := intake.NewService(intakeRepo, throttler, cipher, riskClient, recorder, logger)
	intakeHandler := intake.NewHandler(intakeService, logger, auth.ActorFromRequest)

	auditHandler := audit.NewHandler(auditRepo, recorder, auth.ActorFromRequest)
	statsHandler := maintenance.NewStatsHandler(limiter, recorder, logger, os.Getenv("CRON_SECRET"))

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(tokens, recorder, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/project-requests", limiter.Middleware(ratelimit.TierForm, http.HandlerFunc(intakeHandler.Submit)))
	mux.Handle("POST /api/v1/auth/login", limiter.Middleware(ratelimit.TierLogin, http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/auth/refresh", limiter.Middleware(ratelimit.TierPublic, http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /api/v1/auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /api/v1/admin/requests", authed(intakeHandler.List))
	mux.Handle("GET /api/v1/admin/requests/export", authed(intakeHandler.Export))
	mux.Handle("GET /api/v1/admin/requests/{id}", authed(intakeHandler.Get))
	mux.Handle("PATCH /api/v1/admin/requests/{id}/status", authed(intakeHandler.UpdateStatus))
	mux.Handle("DELETE /api/v1/admin/requests/{id}", authed(intakeHandler.Delete))
	mux.Handle("GET /api/v1/admin/audit", authed(auditHandler.List))
	mux.HandleFunc("GET /internal/maintenance/stats", statsHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/stats", statsHandler.Handle)
	mux.Handle("GET /health", limiter.Middleware(ratelimit.TierPublic, healthHandler(database)))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			limiter.Stop()
			recorder.Close()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envFloatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envMillisOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Millisecond
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
