// Package engine wires the stock ledger, availability calculator, reservation
// lifecycle and calendar materializer into one set of services sharing a
// database handle, outbox and transaction policy.
package engine

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/internal/audit"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	"github.com/angelmondragon/eventrentals-backend/internal/calendar"
	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	"github.com/angelmondragon/eventrentals-backend/internal/reservations"
	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox"
)

type Params struct {
	DB       *gorm.DB
	TxRunner db.TxRunner
	Outbox   outbox.Emitter
	Policy   db.TxPolicy
	Logger   *logger.Logger
	Metrics  *metrics.EngineMetrics
	Clock    func() time.Time
}

// Engine exposes the services the API and workers call.
type Engine struct {
	Inventory    inventory.Service
	Availability *availability.Calculator
	Reservations reservations.Service
	Calendar     calendar.Service
	Audit        audit.Service
}

// PolicyFrom maps engine configuration onto the transaction bounds.
func PolicyFrom(cfg config.EngineConfig) db.TxPolicy {
	return db.TxPolicy{Timeout: cfg.TxTimeout, LockTimeout: cfg.LockTimeout}
}

func New(params Params) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("db handle required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}

	invRepo := inventory.NewRepository(params.DB)
	ledger := inventory.NewLedger(invRepo)
	invSvc, err := inventory.NewService(inventory.ServiceParams{
		TxRunner: params.TxRunner,
		Repo:     invRepo,
		Ledger:   ledger,
		Outbox:   params.Outbox,
		Policy:   params.Policy,
		Logger:   params.Logger,
		Metrics:  params.Metrics,
	})
	if err != nil {
		return nil, err
	}

	calc := availability.NewCalculator(availability.NewRepository(params.DB))
	auditSvc, err := audit.NewService(audit.NewRepository(params.DB))
	if err != nil {
		return nil, err
	}
	resRepo := reservations.NewRepository(params.DB)

	calSvc, err := calendar.NewService(calendar.ServiceParams{
		TxRunner:     params.TxRunner,
		Repo:         calendar.NewRepository(params.DB),
		Inventory:    invRepo,
		Ledger:       ledger,
		Calculator:   calc,
		Reservations: resRepo,
		Audit:        auditSvc,
		Outbox:       params.Outbox,
		Policy:       params.Policy,
		Logger:       params.Logger,
		Metrics:      params.Metrics,
		Clock:        params.Clock,
	})
	if err != nil {
		return nil, err
	}

	resSvc, err := reservations.NewService(reservations.ServiceParams{
		TxRunner:     params.TxRunner,
		Repo:         resRepo,
		Inventory:    invRepo,
		Calculator:   calc,
		Materializer: calSvc,
		Outbox:       params.Outbox,
		Policy:       params.Policy,
		Logger:       params.Logger,
		Metrics:      params.Metrics,
		Clock:        params.Clock,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Inventory:    invSvc,
		Availability: calc,
		Reservations: resSvc,
		Calendar:     calSvc,
		Audit:        auditSvc,
	}, nil
}
