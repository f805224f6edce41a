package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jamesprial/biteme-gateway/internal/utils"
)

const (
	// MaxHeaderLength is the maximum allowed length for a single header value
	MaxHeaderLength = 8000

	// DefaultMaxBodySize matches the 50MB upload limit of the meal photo flow
	DefaultMaxBodySize = 50 * 1024 * 1024
)

// NewRequestValidationMiddleware rejects oversized or malformed requests
// before any rate limit or proxy work. Bodies are streamed, not buffered:
// a body that grows past the limit fails the upstream write.
func NewRequestValidationMiddleware(maxBodySize int64) func(http.Handler) http.Handler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := validateHeaders(r); err != nil {
				utils.WriteError(w, http.StatusBadRequest, "BadRequest", err.Error(), "")
				return
			}

			if r.ContentLength > maxBodySize {
				utils.WriteError(w, http.StatusRequestEntityTooLarge, "PayloadTooLarge", "Request body too large", "")
				return
			}

			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validateHeaders checks header value length and rejects control characters
func validateHeaders(r *http.Request) error {
	for name, values := range r.Header {
		for _, value := range values {
			if len(value) > MaxHeaderLength {
				return fmt.Errorf("Header too long: %s", name)
			}
			if strings.ContainsAny(value, "\x00\r\n") {
				return fmt.Errorf("Invalid header value: %s", name)
			}
		}
	}
	return nil
}
