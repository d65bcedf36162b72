package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
)

const (
	traceIDHeader    = "X-Trace-ID"
	maxTraceIDLength = 64
)

// TraceIDMiddleware accepts a caller-supplied trace id when it is short enough
// and otherwise mints one. The id is echoed back and carried in the context.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceIDHeader)
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = uuid.NewString()
		}

		w.Header().Set(traceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), constants.TraceIDKey, traceID)))
	})
}
