package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the rental storefront and the staff console call the API from
// the configured origins. Clients read the request id, the idempotent replay
// marker and Retry-After from responses.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, IdempotentReplayHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
