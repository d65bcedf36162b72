package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
)

type AuthConfig struct {
	HTTPPort       string        `env:"AUTH_HTTP_PORT" envDefault:"8081"`
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	RedisURL       string        `env:"REDIS_URL"`
	RunMigrations  bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET,required"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET,required"`
	AccessTokenTTL   time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	MaxSessionsPerUser   int           `env:"MAX_SESSIONS_PER_USER" envDefault:"5"`
	TokenRetention       time.Duration `env:"TOKEN_RETENTION" envDefault:"168h"`
	TokenCleanupInterval time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"`

	StoreTimeout            time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	CircuitBreakerThreshold int32         `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerReset     time.Duration `env:"CIRCUIT_BREAKER_RESET" envDefault:"30s"`

	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"15m"`

	RefreshCookieSecure bool `env:"REFRESH_COOKIE_SECURE" envDefault:"true"`

	LogDir   string `env:"LOG_DIR"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadAuthConfig reads an optional .env file and then the process environment.
func LoadAuthConfig() (AuthConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AuthConfig{}, fmt.Errorf("load .env: %w", err)
	}
	return parseAuthConfig(env.Options{})
}

func parseAuthConfig(opts env.Options) (AuthConfig, error) {
	var cfg AuthConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			for _, e := range aggErr.Errors {
				var missing env.EnvVarIsNotSetError
				if errors.As(e, &missing) {
					return AuthConfig{}, commonerrors.ErrMissingRequiredEnv.WithCause(e)
				}
			}
		}
		return AuthConfig{}, fmt.Errorf("parse auth config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return AuthConfig{}, err
	}
	return cfg, nil
}

func (c AuthConfig) Validate() error {
	if err := validateJWTSecrets(c.JWTAccessSecret, c.JWTRefreshSecret); err != nil {
		return err
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive: access=%v refresh=%v", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("access token ttl %v must be shorter than refresh token ttl %v", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got %v", c.StoreTimeout)
	}
	return nil
}

func validateJWTSecrets(access, refresh string) error {
	if len(access) < constants.JWTSecretMinLength {
		return commonerrors.ErrInvalidJWTSecret.WithCause(fmt.Errorf("JWT_ACCESS_SECRET: got %d bytes", len(access)))
	}
	if len(refresh) < constants.JWTSecretMinLength {
		return commonerrors.ErrInvalidJWTSecret.WithCause(fmt.Errorf("JWT_REFRESH_SECRET: got %d bytes", len(refresh)))
	}
	if access == refresh {
		return commonerrors.ErrInvalidJWTSecret.WithCause(errors.New("access and refresh secrets must differ"))
	}
	return nil
}
