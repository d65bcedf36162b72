package main

import (
	"context"
	"fmt"
	"os"

	authcleanup "github.com/AlibekovAA/worktime/backend/internal/auth/cleanup"
	authhttp "github.com/AlibekovAA/worktime/backend/internal/auth/http"
	authrepo "github.com/AlibekovAA/worktime/backend/internal/auth/repository"
	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	"github.com/AlibekovAA/worktime/backend/internal/common/bootstrap"
	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/worktime/backend/internal/common/crypto"
	"github.com/AlibekovAA/worktime/backend/internal/common/db"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/worktime/backend/internal/common/http"
	"github.com/AlibekovAA/worktime/backend/internal/common/ratelimit"
	"github.com/AlibekovAA/worktime/backend/internal/common/resilience"
	srv "github.com/AlibekovAA/worktime/backend/internal/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.NewAuthApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auth service: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	log := app.Log
	clk := clock.NewRealClock()
	idGenerator := commoncrypto.NewUUIDGenerator()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  cfg.CircuitBreakerThreshold,
		Timeout:    cfg.StoreTimeout,
		ResetAfter: cfg.CircuitBreakerReset,
		Name:       "auth_store",
		Clock:      clk,
		Logger:     log,
	})

	issuer := service.NewTokenIssuer(service.TokenIssuerConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, idGenerator, clk)

	ledger := service.NewTokenLedger(
		authrepo.NewPgRefreshTokenRepository(app.Pool),
		authrepo.NewPgBlacklistRepository(app.Pool),
		breaker,
		idGenerator,
		cfg.AccessTokenTTL,
		clk,
		log,
	)

	authService := service.NewAuthService(service.AuthServiceDeps{
		Users:              app.UserRepo,
		Ledger:             ledger,
		Issuer:             issuer,
		Hasher:             commoncrypto.NewBcryptHasher(commoncrypto.DefaultBcryptCost),
		IDGenerator:        idGenerator,
		Breaker:            breaker,
		Clock:              clk,
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		Logger:             log,
	})

	db.StartPoolMetrics(ctx, app.Pool, constants.DBPoolMetricsInterval)
	go authcleanup.StartTokenPurge(ctx, ledger, cfg.TokenCleanupInterval, cfg.TokenRetention, log)

	var loginLimiter *ratelimit.WindowLimiter
	if app.Redis != nil {
		loginLimiter = ratelimit.NewWindowLimiter(app.Redis, "worktime:ratelimit:", cfg.LoginRateLimit, cfg.LoginRateWindow)
	}
	rateLimiter := commonhttp.NewStrictRateLimiter(commonhttp.DefaultAuthPathLimits)

	healthChecks := map[string]commonhttp.HealthCheck{
		"postgres": func(ctx context.Context) error { return app.Pool.Ping(ctx) },
		"store_circuit": func(context.Context) error {
			if breaker.IsOpen() {
				return commonerrors.ErrCircuitOpen
			}
			return nil
		},
	}
	if app.Redis != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	router := authhttp.NewRouter(authService, authhttp.RouterConfig{
		RequestTimeout:      cfg.RequestTimeout,
		RefreshCookieSecure: cfg.RefreshCookieSecure,
		LoginLimiter:        loginLimiter,
		RateLimiter:         rateLimiter,
		HealthChecks:        healthChecks,
	}, log)

	server := srv.NewServer(srv.DefaultServerConfig(cfg.HTTPPort, cfg.RequestTimeout), commonhttp.BuildBaseHandler(log, router))

	shutdownHooks := []srv.ShutdownHook{
		func(context.Context) error {
			log.Info("auth service: stopping background workers")
			cancel()
			return nil
		},
		rateLimiter.Stop,
	}

	srv.StartWithGracefulShutdownAndHooks(server, log, "auth", shutdownHooks)
}
