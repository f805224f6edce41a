package middleware

import (
	"net/http"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// AccessLog logs one line per request. Server errors log at error level and
// client errors at warn.
func AccessLog(logger interfaces.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := utils.NewStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.Status,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   utils.ClientIP(r, trustProxy),
				"request_id":  RequestIDFromContext(r.Context()),
			}

			switch {
			case rec.Status >= 500:
				logger.Error("Request completed", fields)
			case rec.Status >= 400:
				logger.Warn("Request completed", fields)
			default:
				logger.Info("Request completed", fields)
			}
		})
	}
}
