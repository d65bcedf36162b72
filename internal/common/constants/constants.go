package constants

import "time"

const (
	PasswordMinLength    = 6
	PasswordMaxLength    = 72
	CompanyNameMinLength = 2
	CompanyNameMaxLength = 100
	EmailMaxLength       = 254
	JWTSecretMinLength   = 32

	DefaultMaxRequestSize = 1 << 20

	DBPoolMaxOpenConns    = 25
	DBPoolMinOpenConns    = 2
	DBPoolConnMaxLifetime = 5 * time.Minute
	DBPoolConnMaxIdleTime = 10 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 15 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second
	ServerMaxHeaderBytes    = 1 << 20

	ShutdownTimeout = 30 * time.Second

	DefaultTokenRetention = 7 * 24 * time.Hour

	TokenTypeBearer   = "Bearer"
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/api/auth"

	BlacklistReasonLogout         = "logout"
	BlacklistReasonSecurityLogout = "security_logout"

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
