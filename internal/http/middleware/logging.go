package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/logger"
	"go.uber.org/zap"
)

// wrapWriter records status and size for the logging and metrics middleware
func wrapWriter(w http.ResponseWriter, r *http.Request) chimw.WrapResponseWriter {
	return chimw.NewWrapResponseWriter(w, r.ProtoMajor)
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// Logging writes one access log line per request, tagged with the request
// id, the matched route and the tenant and user when known. 5xx responses
// log at error level and 4xx at warn.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimw.GetReqID(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ww := wrapWriter(w, r)
			next.ServeHTTP(ww, r)

			reqLog := logger.WithRequest(log, r.Method, r.URL.Path, requestID)
			var tenantID, userID string
			if user, ok := auth.FromContext(r.Context()); ok {
				userID = user.UserID.String()
			}
			if id, err := auth.RequireTenant(r.Context()); err == nil {
				tenantID = id.String()
			}
			reqLog = logger.WithTenant(reqLog, tenantID, userID)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			status := statusOf(ww)
			fields := []zap.Field{
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remoteAddr", r.RemoteAddr),
			}

			switch {
			case status >= http.StatusInternalServerError:
				reqLog.Error("request failed", fields...)
			case status >= http.StatusBadRequest:
				reqLog.Warn("request rejected", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}
