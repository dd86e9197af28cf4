package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
	"github.com/angelmondragon/eventrentals-backend/pkg/metrics"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqWriter interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Broker     pinger
	Repository outboxRepository
	Registry   registryResolver
	Publishers publisherFactory
	DLQ        dlqWriter
	Metrics    *metrics.OutboxMetrics
	Instance   string
}

type pinger interface {
	Ping(context.Context) error
}

// Service drains outbox_events into Pub/Sub. Rows are claimed with
// SKIP LOCKED so several publishers can run side by side.
type Service struct {
	logg           *logger.Logger
	db             dbClient
	broker         pinger
	repo           outboxRepository
	registry       registryResolver
	dlq            dlqWriter
	publishers     *publisherCache
	metrics        *metrics.OutboxMetrics
	instance       string
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	jitter         *rand.Rand
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publishers == nil:
		return nil, errors.New("publisher factory is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	cfg := params.Config.Outbox
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &Service{
		logg:           params.Logger,
		db:             params.DB,
		broker:         params.Broker,
		repo:           params.Repository,
		registry:       params.Registry,
		dlq:            params.DLQ,
		publishers:     newPublisherCache(params.Publishers),
		metrics:        params.Metrics,
		instance:       params.Instance,
		batchSize:      batch,
		maxAttempts:    maxAttempts,
		pollInterval:   poll,
		publishTimeout: timeout,
		jitter:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            time.Now,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.broker.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "outbox publisher dependencies ready")

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		started := s.now()
		claimed, err := s.processBatch(ctx)
		s.metrics.ObserveBatch(s.now().Sub(started))

		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, s.pollInterval, maxIdleBackoff)
		case claimed == s.batchSize:
			// A full batch usually means more rows are waiting.
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := s.sleep(ctx, s.withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims one batch and publishes it in created_at order. Once an
// aggregate's event fails, its later events in the batch are deferred so
// subscribers never see a reservation's events out of order.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)

		blocked := make(map[uuid.UUID]struct{})
		for _, event := range events {
			evCtx := s.logg.WithFields(ctx, s.eventFields(event))
			if _, ok := blocked[event.AggregateID]; ok {
				s.metrics.IncEvent(string(event.EventType), metrics.PublishOutcomeDeferred)
				s.logg.Debug(evCtx, "outbox event deferred behind failed aggregate event")
				continue
			}
			published, err := s.dispatch(evCtx, tx, event)
			if err != nil {
				return err
			}
			if !published {
				blocked[event.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch publishes one row and records the outcome on it. It only returns
// an error when the outcome itself could not be stored.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (bool, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	err = s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return false, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.IncEvent(string(event.EventType), metrics.PublishOutcomePublished)
		s.logg.Info(ctx, "outbox event published")
		return true, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return false, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"attempt_count": event.AttemptCount + 1,
		"error":         err.Error(),
	})
	s.logg.Warn(ctx, "outbox publish failed, will retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return false, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	s.metrics.IncEvent(string(event.EventType), metrics.PublishOutcomeRetry)
	return false, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	s.logg.Warn(ctx, "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncEvent(string(event.EventType), metrics.PublishOutcomeDeadLetter)
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if s.instance != "" {
		fields["instance"] = s.instance
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
