package http

import (
	"net/http"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
)

// BuildBaseHandler wraps handler with the middleware every service shares.
// Request metrics are attached inside the router so route patterns are known.
func BuildBaseHandler(log *logger.Logger, handler http.Handler) http.Handler {
	recovery := RecoveryMiddleware(log)
	maxRequestSize := MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize)

	return SecurityHeadersMiddleware(TraceIDMiddleware(recovery(maxRequestSize(handler))))
}
