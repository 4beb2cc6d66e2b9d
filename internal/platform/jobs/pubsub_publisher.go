package jobs

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/marketline/api/internal/services"
)

// PubSubOrderEventPublisher sends order events to a Pub/Sub topic with the order id as ordering
// key, so subscribers see one order's transitions in sequence.
type PubSubOrderEventPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubOrderEventPublisher enables message ordering on topic. The subscription side must be
// created with ordering enabled as well.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubOrderEventPublisher{topic: topic}, nil
}

// PublishOrderEvent blocks until Pub/Sub acknowledges the message and returns its server id. A
// failed publish pauses the ordering key, so it is resumed before returning.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}
	env, err := newEnvelope(event)
	if err != nil {
		return "", err
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:        env.body,
		Attributes:  env.attrs,
		OrderingKey: env.key,
	}).Get(ctx)
	if err != nil {
		p.topic.ResumePublish(env.key)
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// Ready fails when the topic cannot be reached or has been deleted.
func (p *PubSubOrderEventPublisher) Ready(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("pubsub topic %s: %w", p.topic.ID(), err)
	}
	if !exists {
		return fmt.Errorf("pubsub topic %s not found", p.topic.ID())
	}
	return nil
}
