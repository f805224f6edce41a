package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// Recovery turns a panic into a 500 envelope. The stack trace is included
// in the response only outside production; it is always logged.
func Recovery(logger interfaces.Logger, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := utils.NewStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				stack := string(debug.Stack())
				if logger != nil {
					logger.Error("Panic while handling request", map[string]any{
						"method":     r.Method,
						"path":       r.URL.Path,
						"panic":      fmt.Sprint(v),
						"stack":      stack,
						"request_id": RequestIDFromContext(r.Context()),
					})
				}

				if rec.Written() {
					return
				}
				if production {
					stack = ""
				}
				utils.WriteError(rec, http.StatusInternalServerError, "InternalGatewayError", "Gateway Error", stack)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
