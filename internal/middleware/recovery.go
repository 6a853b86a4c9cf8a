package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"biocloud/internal/httputil"
)

// Recovery middleware recovers from panics and returns a 500 error. It runs
// inside AuthMiddleware so the caller is attached to the log line.
// http.ErrAbortHandler is re-raised: it is how streaming handlers abort a
// response that has already started.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				identity := httputil.GetIdentity(r)
				logger.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"user_id", identity.UserID,
					"anonymous", identity.IsAnonymous(),
					"stack", string(debug.Stack()),
				)

				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
