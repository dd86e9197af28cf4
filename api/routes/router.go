package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/eventrentals-backend/api/controllers"
	"github.com/angelmondragon/eventrentals-backend/api/middleware"
	"github.com/angelmondragon/eventrentals-backend/internal/calendar"
	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	"github.com/angelmondragon/eventrentals-backend/internal/reservations"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/eventrentals-backend/pkg/redis"
)

// Store backs idempotent replays and request throttling.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Deps collects everything the router hands to controllers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Store        Store
	Metrics      *prometheus.Registry
	Inventory    inventory.Service
	Availability controllers.AvailabilityReader
	Reservations reservations.Service
	Calendar     calendar.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(deps.Metrics))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	submitPolicy := middleware.NewRateLimitPolicy(
		"submit",
		cfg.RateLimit.SubmitWindow,
		cfg.RateLimit.SubmitIPLimit,
		cfg.RateLimit.SubmitUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Store, cfg.Engine.IdempotencyTTL, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/reservations", func(r chi.Router) {
			r.With(middleware.RateLimit(submitPolicy, deps.Store, logg)).Post("/", controllers.ReservationSubmit(deps.Reservations, logg))
			r.Get("/", controllers.ReservationList(deps.Reservations, logg))
			r.Get("/{reservationId}", controllers.ReservationDetail(deps.Reservations, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePrivileged(logg))
				r.Post("/{reservationId}/confirm", controllers.ReservationConfirm(deps.Reservations, logg))
				r.Delete("/{reservationId}", controllers.ReservationCancel(deps.Reservations, logg))
			})
		})

		r.Route("/availability", func(r chi.Router) {
			r.Get("/", controllers.AvailabilityGet(deps.Availability, logg))
			r.Post("/check", controllers.AvailabilityCheck(deps.Availability, logg))
		})

		r.Route("/calendar", func(r chi.Router) {
			r.Use(middleware.RequirePrivileged(logg))
			r.Post("/", controllers.CalendarBook(deps.Calendar, logg))
			r.Get("/", controllers.CalendarList(deps.Calendar, logg))
			r.Get("/{calendarId}", controllers.CalendarDetail(deps.Calendar, logg))
			r.Put("/{calendarId}", controllers.CalendarEdit(deps.Calendar, logg))
			r.Delete("/{calendarId}", controllers.CalendarFinalize(deps.Calendar, logg))
			r.Get("/{calendarId}/audit", controllers.CalendarAudit(deps.Calendar, logg))
		})

		r.Route("/inventory/items", func(r chi.Router) {
			r.Use(middleware.RequirePrivileged(logg))
			r.Post("/", controllers.InventoryCreateItem(deps.Inventory, logg))
			r.Get("/", controllers.InventoryListItems(deps.Inventory, logg))
			r.Get("/{itemId}", controllers.InventoryItemDetail(deps.Inventory, logg))
			r.Post("/{itemId}/adjust", controllers.InventoryAdjust(deps.Inventory, logg))
			r.Get("/{itemId}/movements", controllers.InventoryMovements(deps.Inventory, logg))
			r.Get("/{itemId}/reconcile", controllers.InventoryReconcile(deps.Inventory, logg))
		})
	})

	return r
}
