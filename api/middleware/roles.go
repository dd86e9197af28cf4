package middleware

import (
	"net/http"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

// RequirePrivileged guards staff operations: confirming, cancelling, the
// calendar and the inventory catalog. Customers get 403.
func RequirePrivileged(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireActor(logg, "staff or admin role required", auth.Actor.Privileged)
}

func requireActor(logg *logger.Logger, denied string, allow func(auth.Actor) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := ActorFromContext(ctx)
			switch {
			case !ok:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !allow(actor):
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, denied))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
