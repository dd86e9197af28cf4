package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

const (
	defaultPendingTTL      = 72 * time.Hour
	defaultExpiryBatchSize = 100
	maxExpiryBatches       = 50
)

// ReservationExpiryJobParams configure the pending reservation expiry job.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Expirer   reservationExpirer
	TTL       time.Duration
	BatchSize int
}

type reservationExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewReservationExpiryJob builds the job that cancels pending reservations
// nobody confirmed within the TTL.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("reservation expirer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		ttl:     ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	expirer reservationExpirer
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run expires in batches until a batch comes back short. A partially failed
// batch still counts the rows it expired.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var errs error
	total := 0
	for i := 0; i < maxExpiryBatches; i++ {
		expired, err := j.expirer.ExpirePending(ctx, cutoff, j.batch)
		total += expired
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire batch %d: %w", i, err))
			break
		}
		if expired < j.batch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"ttl":     j.ttl.String(),
		"expired": total,
	})
	j.logg.Info(logCtx, "reservation expiry loop complete")
	return errs
}
