package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is any dependency that can report its own health.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EventRentals-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis. A nil pinger is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-EventRentals-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := []struct {
			name   string
			pinger Pinger
		}{
			{"database", dbPinger},
			{"redis", redisPinger},
		}
		status := map[string]string{}
		for _, check := range checks {
			if check.pinger == nil {
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
					WithDetails(map[string]any{"dependency": check.name}))
				return
			}
			status[check.name] = "ok"
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
