package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// UnroutedService labels requests that never matched a backend.
const UnroutedService = "gateway"

type labelsKey struct{}

type requestLabels struct {
	service string
}

// SetService labels the current request with the backend it was routed to.
// It is a no-op outside Middleware.
func SetService(ctx context.Context, service string) {
	if l, ok := ctx.Value(labelsKey{}).(*requestLabels); ok {
		l.service = service
	}
}

// Middleware wraps a handler to collect request metrics.
func Middleware(collector *Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			labels := &requestLabels{service: UnroutedService}
			rec := utils.NewStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), labelsKey{}, labels)))

			collector.RecordRequest(labels.service, r.Method, rec.Status, time.Since(start))
		})
	}
}
