package service

import (
	"errors"
	"fmt"
	"net/http"

	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
)

var (
	ErrEmailAlreadyExists = commonerrors.ErrEmailAlreadyExists

	ErrInvalidCurrentPassword = commonerrors.NewDomainError(
		"INVALID_CURRENT_PASSWORD",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"current password is incorrect",
	)

	ErrSessionNotFound = commonerrors.NewDomainError(
		"SESSION_NOT_FOUND",
		commonerrors.CategoryNotFound,
		http.StatusNotFound,
		"session not found",
	)

	ErrInvalidCredentials = commonerrors.NewDomainError(
		"INVALID_CREDENTIALS",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid email or password",
	)

	ErrInvalidRefreshToken = commonerrors.NewDomainError(
		"INVALID_REFRESH_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid refresh token",
	)

	ErrInvalidTokenKind = commonerrors.NewDomainError(
		"INVALID_TOKEN_KIND",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid token",
	)

	ErrUserNotFound = commonerrors.NewDomainError(
		"USER_NOT_FOUND",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"user not found",
	)

	ErrInvalidAccessToken = commonerrors.NewDomainError(
		"INVALID_ACCESS_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid or expired access token",
	)

	ErrAccessTokenRevoked = commonerrors.NewDomainError(
		"ACCESS_TOKEN_REVOKED",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"access token has been revoked",
	)

	ErrValidation = commonerrors.NewDomainError(
		"VALIDATION_FAILED",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"validation failed",
	)

	ErrServiceUnavailable = commonerrors.NewDomainError(
		"SERVICE_UNAVAILABLE",
		commonerrors.CategoryExternal,
		http.StatusServiceUnavailable,
		"service temporarily unavailable",
	)
)

// Reasons a refresh token is rejected. They are logged and counted but never
// shown to the client.
const (
	RejectMissing         = "missing"
	RejectMalformed       = "malformed"
	RejectSignature       = "signature"
	RejectExpired         = "expired"
	RejectNotFound        = "not_found"
	RejectRevoked         = "revoked"
	RejectReplayed        = "replayed"
	RejectSubjectMismatch = "subject_mismatch"
)

type refreshRejection struct {
	reason string
	err    error
}

func (r *refreshRejection) Error() string {
	if r.err == nil {
		return "refresh rejected: " + r.reason
	}
	return fmt.Sprintf("refresh rejected: %s: %v", r.reason, r.err)
}

func (r *refreshRejection) Unwrap() error {
	return r.err
}

// RejectReason returns the server-side reason carried by an
// ErrInvalidRefreshToken, or "" for any other error.
func RejectReason(err error) string {
	var rejection *refreshRejection
	if errors.As(err, &rejection) {
		return rejection.reason
	}
	return ""
}

func rejectRefresh(reason string, cause error) error {
	return ErrInvalidRefreshToken.WithCause(&refreshRejection{reason: reason, err: cause})
}

func validationError(cause error) error {
	return ErrValidation.WithCause(cause)
}

// unavailable turns any store failure into ErrServiceUnavailable. Domain
// errors that already describe a client-facing outcome pass through.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, commonerrors.ErrCircuitOpen) || errors.Is(err, commonerrors.ErrStoreTimeout) {
		return ErrServiceUnavailable.WithCause(err)
	}
	if commonerrors.IsDomainError(err) {
		return err
	}
	return ErrServiceUnavailable.WithCause(err)
}
