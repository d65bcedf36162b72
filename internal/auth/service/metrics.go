package service

import (
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

func recordOperation(operation string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	metrics.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func incrementRefreshTokensIssued() {
	metrics.RefreshTokensIssued.Inc()
}

func incrementRefreshTokensRotated() {
	metrics.RefreshTokensRotated.Inc()
}

func addRefreshTokensRevoked(cause string, n int64) {
	if n > 0 {
		metrics.RefreshTokensRevoked.WithLabelValues(cause).Add(float64(n))
	}
}

func incrementRefreshTokensRejected(reason string) {
	metrics.RefreshTokensRejected.WithLabelValues(reason).Inc()
}

func incrementAccessTokensIssued() {
	metrics.AccessTokensIssued.Inc()
}

func incrementAccessTokensBlacklisted(reason string) {
	metrics.AccessTokensBlacklisted.WithLabelValues(reason).Inc()
}

func incrementJWTValidations() {
	metrics.JWTValidationsTotal.Inc()
}

func incrementJWTValidationsFailed(reason string) {
	metrics.JWTValidationsFailed.WithLabelValues(reason).Inc()
}

func incrementJWTRevokedChecks() {
	metrics.JWTRevokedChecksTotal.Inc()
}

func recordPurge(result PurgeResult) {
	metrics.RefreshTokensCleanupDeleted.Add(float64(result.RefreshTokens))
	metrics.BlacklistCleanupDeleted.Add(float64(result.BlacklistEntries))
}
