package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/biddart/biddart-backend/api/responses"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

// Recoverer answers a handler panic with a 500 envelope. http.ErrAbortHandler
// keeps propagating so net/http still drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					writePanic(logg, w, r, rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writePanic(logg *logger.Logger, w http.ResponseWriter, r *http.Request, rec any) {
	err := fmt.Errorf("panic: %v", rec)
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"stack":  string(debug.Stack()),
		})
		logg.Error(ctx, "handler panicked", err)
	}
	responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "internal server error"))
}
