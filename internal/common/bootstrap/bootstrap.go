package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/AlibekovAA/worktime/backend/internal/common/config"
	"github.com/AlibekovAA/worktime/backend/internal/common/db"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/ratelimit"
	userrepo "github.com/AlibekovAA/worktime/backend/internal/user/repository"
)

type AuthApp struct {
	Log      *logger.Logger
	Config   config.AuthConfig
	Pool     *pgxpool.Pool
	Redis    *goredis.Client
	UserRepo userrepo.Repository
}

// NewAuthApp loads configuration and opens the shared infrastructure. Redis is
// optional; without REDIS_URL the login window limiter is disabled.
func NewAuthApp(ctx context.Context) (*AuthApp, error) {
	cfg, err := config.LoadAuthConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogDir, "auth", cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, log, cfg.DatabaseURL)
	if err != nil {
		log.Close()
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.ApplyMigrations(pool, log); err != nil {
			pool.Close()
			log.Close()
			return nil, err
		}
	}

	app := &AuthApp{
		Log:      log,
		Config:   cfg,
		Pool:     pool,
		UserRepo: userrepo.NewPgRepository(pool),
	}

	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnf("redis unavailable at startup, login limiter will fail open: %v", err)
		}
		app.Redis = client
	} else {
		log.Warn("REDIS_URL not set, login window limiter disabled")
	}

	return app, nil
}

func (a *AuthApp) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Errorf("redis close: %v", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	_ = a.Log.Close()
}
