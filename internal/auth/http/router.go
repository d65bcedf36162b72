package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	commonhttp "github.com/AlibekovAA/worktime/backend/internal/common/http"
	"github.com/AlibekovAA/worktime/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/worktime/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/ratelimit"
	userdomain "github.com/AlibekovAA/worktime/backend/internal/user/domain"
)

// AuthService is the part of service.AuthService the routes call.
type AuthService interface {
	jwtverify.Authenticator
	Register(ctx context.Context, input service.RegisterInput, info authdomain.RequestInfo) (*service.AuthResult, error)
	Login(ctx context.Context, input service.LoginInput, info authdomain.RequestInfo) (*service.AuthResult, error)
	Refresh(ctx context.Context, rawToken string, info authdomain.RequestInfo) (*service.AuthResult, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	Logout(ctx context.Context, input service.LogoutInput, info authdomain.RequestInfo) service.LogoutResult
	LogoutAllDevices(ctx context.Context, userID string) (int64, error)
	GetUserActiveSessions(ctx context.Context, userID string) ([]authdomain.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	GetProfile(ctx context.Context, userID string) (userdomain.Summary, error)
}

type RouterConfig struct {
	RequestTimeout      time.Duration
	RefreshCookieSecure bool
	LoginLimiter        *ratelimit.WindowLimiter
	RateLimiter         *commonhttp.StrictRateLimiter
	HealthChecks        map[string]commonhttp.HealthCheck
}

type Handler struct {
	auth         AuthService
	log          *logger.Logger
	secureCookie bool
}

func NewRouter(auth AuthService, cfg RouterConfig, log *logger.Logger) http.Handler {
	h := &Handler{auth: auth, log: log, secureCookie: cfg.RefreshCookieSecure}

	limit := func(path string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.MiddlewareForPath(path)
	}

	r := chi.NewRouter()
	r.Use(httpmetrics.New().Wrap)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		commonhttp.WriteErrorEnvelope(w, http.StatusNotFound, commonhttp.CodeNotFound, "not found", nil, commonhttp.TraceIDFromContext(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		commonhttp.WriteErrorEnvelope(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed", nil, commonhttp.TraceIDFromContext(r.Context()))
	})

	r.Get("/health", commonhttp.HealthHandler(cfg.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(commonhttp.TimeoutMiddleware(cfg.RequestTimeout))

		r.With(limit("/api/auth/register")).Post("/register", h.register)
		r.With(
			commonhttp.WindowLimitMiddleware(cfg.LoginLimiter, "login", log),
			limit("/api/auth/login"),
		).Post("/login", h.login)
		r.With(limit("/api/auth/refresh")).Post("/refresh", h.refresh)
		r.With(limit("/api/auth/logout")).Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(jwtverify.Middleware(auth, log))
			r.Post("/change-password", h.changePassword)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/sessions", h.sessions)
			r.Delete("/sessions/{sessionID}", h.revokeSession)
			r.Get("/me", h.me)
		})
	})

	return r
}
