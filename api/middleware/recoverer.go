package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Recoverer answers a handler panic with the standard 500 envelope.
// http.ErrAbortHandler keeps its meaning and is re-panicked.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "panic_value", fmt.Sprint(v))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovered from panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
