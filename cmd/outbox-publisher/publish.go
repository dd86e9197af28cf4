package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/eventrentals-backend/pkg/db/models"
	"github.com/angelmondragon/eventrentals-backend/pkg/outbox/registry"
	"github.com/angelmondragon/eventrentals-backend/pkg/pubsub"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// ResumePublish re-opens an ordering key after a failed publish.
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// publisherCache hands out one publisher per topic for the life of the process.
type publisherCache struct {
	mu      sync.Mutex
	factory publisherFactory
	byTopic map[string]publisher
}

func newPublisherCache(factory publisherFactory) *publisherCache {
	return &publisherCache{factory: factory, byTopic: make(map[string]publisher)}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byTopic[topic]; ok {
		return p
	}
	p := c.factory(topic)
	if p != nil {
		c.byTopic[topic] = p
	}
	return p
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":         resolved.Envelope.EventID,
			"event_type":       string(event.EventType),
			"aggregate_type":   string(event.AggregateType),
			"aggregate_id":     event.AggregateID.String(),
			"envelope_version": fmt.Sprint(resolved.Envelope.Version),
			"occurred_at":      resolved.Envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		pub.ResumePublish(msg.OrderingKey)
		if pubsub.IsPermanent(err) {
			return registry.NewNonRetryableError(fmt.Errorf("publish to %s: %w", topic, err))
		}
		return err
	}
	return nil
}

func gcpPublisherFactory(client *pubsub.Client) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &gcpPublisher{Publisher: p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
