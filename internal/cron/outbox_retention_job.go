package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	outboxMinAttempts      = 10
)

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPurger
	// DLQ is optional; dead letters are kept forever without it.
	DLQ          dlqPurger
	Retention    time.Duration
	DLQRetention time.Duration
	// MinAttempts marks unpublished rows as terminal. It must match the
	// publisher's max attempts.
	MinAttempts int
	Clock       func() time.Time
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob builds the daily cleanup of delivered rental events
// and old dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Outbox,
		dlq:          params.DLQ,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		minAttempts:  params.MinAttempts,
		now:          params.Clock,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPurger
	dlq          dlqPurger
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return 24 * time.Hour }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts)
		if err != nil {
			return fmt.Errorf("outbox events: %w", err)
		}
		events = n
		if j.dlq == nil {
			return nil
		}
		n, err = j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		if err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		deadLetters = n
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":        outboxCutoff,
		"dlq_cutoff":           dlqCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}
