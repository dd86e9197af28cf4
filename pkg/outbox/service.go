package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

// DomainEvent is a state change the engine commits together with the row
// that caused it. Version and OccurredAt default to EnvelopeVersion and now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unsupported outbox event type %q", e.EventType)
	case e.AggregateType == "":
		return fmt.Errorf("%s: aggregate type required", e.EventType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s: aggregate id required", e.EventType)
	case e.Version < 0 || e.Version > EnvelopeVersion:
		return fmt.Errorf("%s: unsupported envelope version %d", e.EventType, e.Version)
	}
	return nil
}

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service is the engine's Emitter. Rows become visible to the publisher only
// when the caller's transaction commits.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// ActorFrom converts the engine capability object into an envelope actor.
func ActorFrom(actor auth.Actor) *ActorRef {
	return &ActorRef{UserID: actor.IDPtr(), Role: string(actor.Role)}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := event.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	id := uuid.New()
	envelope, err := json.Marshal(newEnvelope(id, event, data))
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}

	if err := s.repo.Insert(tx.WithContext(ctx), models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       envelope,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       id.String(),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
