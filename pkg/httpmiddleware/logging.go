package httpmiddleware

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InjectLogger makes lg the base logger of every request context.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
		})
	}
}

// LogRequests writes one log entry per request with its route, status, size
// and duration. Server errors are logged at warn level, everything else at
// debug.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			lvl := zapcore.DebugLevel
			if m.Code >= http.StatusInternalServerError {
				lvl = zapcore.WarnLevel
			}
			lg := zctx.From(r.Context())
			if ce := lg.Check(lvl, "Request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", routeOf(find, r)),
					zap.Int("status", m.Code),
					zap.Int64("bytes", m.Written),
					zap.Duration("duration", m.Duration),
				)
			}
		})
	}
}
