package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the storefront origins with credentials, since the session
// cookie has to travel on cross-origin calls.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			idempotencyHeader,
			requestIDHeader,
			"X-Requested-With",
		},
		ExposedHeaders:   []string{requestIDHeader, "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	return cors.Handler(policy)
}
