package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

type ErrorHandler struct {
	log *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	ctx := r.Context()
	traceID := TraceIDFromContext(ctx)

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		h.countError(r, http.StatusBadRequest)
		details := make(map[string]any, len(validationErr.Fields))
		for field, reason := range validationErr.Fields {
			details[field] = reason
		}
		WriteErrorEnvelope(w, http.StatusBadRequest, CodeValidationFailed, "validation failed", details, traceID)
		return
	}

	if domainErr, ok := commonerrors.AsDomainError(err); ok {
		h.handleDomainError(w, r, domainErr)
		return
	}

	h.log.WithFields(ctx, logger.Fields{
		"error":  err.Error(),
		"action": "unhandled_error",
		"path":   r.URL.Path,
	}).Error("unhandled error")

	h.countError(r, http.StatusInternalServerError)
	WriteErrorEnvelope(w, http.StatusInternalServerError, commonerrors.ErrInternalError.Code(), commonerrors.ErrInternalError.Message(), nil, traceID)
}

func (h *ErrorHandler) handleDomainError(w http.ResponseWriter, r *http.Request, err commonerrors.DomainError) {
	ctx := r.Context()
	traceID := TraceIDFromContext(ctx)

	domainErr := err
	if traceID != "" && err.TraceID() == "" {
		domainErr = err.WithTraceID(traceID)
	}

	status := domainErr.HTTPStatus()

	entry := h.log.WithFields(ctx, logger.Fields{
		"error_code": domainErr.Code(),
		"category":   string(domainErr.Category()),
		"status":     status,
		"action":     "domain_error",
	})
	if status >= http.StatusInternalServerError {
		entry.Errorf("domain error: %s", domainErr.Error())
	} else {
		entry.Debugf("domain error: %s", domainErr.Error())
	}

	metrics.DomainErrorsTotal.WithLabelValues(
		string(domainErr.Category()),
		domainErr.Code(),
		strconv.Itoa(status),
	).Inc()
	h.countError(r, status)

	WriteErrorEnvelope(w, status, domainErr.Code(), domainErr.Message(), nil, domainErr.TraceID())
}

func (h *ErrorHandler) countError(r *http.Request, status int) {
	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(status),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()
}

func HandleError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	NewErrorHandler(log).HandleError(w, r, err)
}

func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(constants.TraceIDKey).(string)
	return traceID
}
