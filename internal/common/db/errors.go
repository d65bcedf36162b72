package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

const uniqueViolationCode = "23505"

func tableFromOperation(operation string) string {
	operation = strings.ToLower(operation)
	switch {
	case strings.Contains(operation, "blacklist"):
		return "token_blacklist"
	case strings.Contains(operation, "refresh") || strings.Contains(operation, "session"):
		return "refresh_tokens"
	case strings.Contains(operation, "company"):
		return "companies"
	case strings.Contains(operation, "user"):
		return "users"
	default:
		return "unknown"
	}
}

func HandleQueryError(err error, notFoundErr error, operation string, startTime time.Time) error {
	MeasureQueryDuration(operation, startTime)

	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundErr
	}
	countError(operation, err)
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func HandleExecError(err error, operation string, startTime time.Time) error {
	MeasureQueryDuration(operation, startTime)

	if err == nil {
		return nil
	}
	countError(operation, err)
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func MeasureQueryDuration(operation string, startTime time.Time) {
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, tableFromOperation(operation)).Observe(time.Since(startTime).Seconds())
}

func countError(operation string, err error) {
	errorType := fmt.Sprintf("%T", err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		errorType = "pg_" + pgErr.Code
	}
	metrics.DBQueryErrors.WithLabelValues(operation, tableFromOperation(operation), errorType).Inc()
}

func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
