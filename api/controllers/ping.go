package controllers

import (
	"net/http"

	"github.com/angelmondragon/eventrentals-backend/api/middleware"
	"github.com/angelmondragon/eventrentals-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the caller identity the engine will act as.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"scope": "private", "status": "ok"}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			payload["user_id"] = middleware.UserIDFromContext(r.Context())
			payload["role"] = actor.Role
			payload["privileged"] = actor.Privileged()
		}
		responses.WriteSuccess(w, payload)
	}
}
