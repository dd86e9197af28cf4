package controllers

import (
	"net/http"

	"github.com/angelmondragon/eventrentals-backend/api/middleware"
	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

func requireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	return actor, nil
}
