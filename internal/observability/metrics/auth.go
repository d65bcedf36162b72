package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth service operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	RefreshTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_issued_total",
			Help:      "Total number of refresh tokens recorded in the ledger",
		},
	)

	RefreshTokensRotated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_rotated_total",
			Help:      "Total number of refresh tokens exchanged for a new pair",
		},
	)

	RefreshTokensRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_revoked_total",
			Help:      "Total number of refresh tokens revoked by cause",
		},
		[]string{"cause"},
	)

	RefreshTokensRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_rejected_total",
			Help:      "Refresh attempts rejected by reason",
		},
		[]string{"reason"},
	)

	RefreshTokensCleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_tokens_cleanup_deleted_total",
			Help:      "Total number of refresh tokens deleted during cleanup",
		},
	)

	AccessTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "access_tokens_issued_total",
			Help:      "Total number of access tokens issued",
		},
	)

	AccessTokensBlacklisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "access_tokens_blacklisted_total",
			Help:      "Total number of access tokens blacklisted by reason",
		},
		[]string{"reason"},
	)

	BlacklistCleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "blacklist_cleanup_deleted_total",
			Help:      "Total number of expired blacklist entries deleted during cleanup",
		},
	)

	JWTValidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "jwt_validations_total",
			Help:      "Total number of JWT validations",
		},
	)

	JWTValidationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "jwt_validations_failed_total",
			Help:      "Total number of failed JWT validations by reason",
		},
		[]string{"reason"},
	)

	JWTRevokedChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "jwt_revoked_checks_total",
			Help:      "Total number of blacklist checks for access tokens",
		},
	)
)
