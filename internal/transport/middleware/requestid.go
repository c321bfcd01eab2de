package middleware

import (
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/pkg/logger"

	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// RequestID puts a trace id on the request context logger and echoes it in
// the response. Inbound X-Trace-ID headers are honored so callers can
// correlate webhook redeliveries; otherwise the chi request id (or a fresh
// uuid) is used.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = chimiddleware.GetReqID(r.Context())
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		w.Header().Set(traceHeader, traceID)

		ctx := logger.With(r.Context(), "traceID", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
