package http

import (
	"net/http"
	"runtime/debug"

	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

func RecoveryMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http uses this sentinel to abort a response; let it through.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				metrics.PanicsRecovered.Inc()
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"method": r.Method,
					"action": "panic_recovered",
				}).Criticalf("panic recovered: %v\n%s", rec, debug.Stack())

				WriteErrorEnvelope(w, http.StatusInternalServerError,
					commonerrors.ErrInternalError.Code(), commonerrors.ErrInternalError.Message(),
					nil, TraceIDFromContext(r.Context()))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
