package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/runnable/runnable-api/internal/api/response"
)

// Crash recovers a panicking handler, answers 500 and then calls onCrash so
// the process can shut down and be restarted by its supervisor.
func Crash(logger zerolog.Logger, onCrash func(recovered any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("stack", string(debug.Stack())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				response.WriteError(w, http.StatusInternalServerError, "internal server error")

				if onCrash != nil {
					onCrash(rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
