package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/segmentio/kafka-go"

	"github.com/marketline/api/internal/services"
)

const defaultKafkaAttempts = 3

// messageWriter is the subset of *kafka.Writer the publisher relies on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEventPublisher publishes order domain events to a Kafka topic keyed by order id, so
// every event of one order lands on the same partition.
type KafkaOrderEventPublisher struct {
	writer   messageWriter
	topic    string
	attempts int
	backoff  gax.Backoff
	clock    func() time.Time
	sleep    func(context.Context, time.Duration) error
	ready    func(context.Context) error
}

// NewKafkaOrderEventPublisher builds a publisher writing to topic on the given brokers.
func NewKafkaOrderEventPublisher(brokers []string, topic string) (*KafkaOrderEventPublisher, error) {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka order publisher: at least one broker is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka order publisher: topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	p := newKafkaOrderEventPublisher(writer, topic)
	p.ready = func(ctx context.Context) error { return checkKafkaTopic(ctx, addrs, topic) }
	return p, nil
}

func newKafkaOrderEventPublisher(writer messageWriter, topic string) *KafkaOrderEventPublisher {
	return &KafkaOrderEventPublisher{
		writer:   writer,
		topic:    topic,
		attempts: defaultKafkaAttempts,
		backoff:  gax.Backoff{Initial: 100 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		clock:    time.Now,
		sleep:    gax.Sleep,
	}
}

// PublishOrderEvent writes the event, retrying transient broker errors a bounded number of times.
// Kafka has no server message id, so the returned id is topic/order/type.
func (p *KafkaOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka order publisher: not initialised")
	}
	env, err := newEnvelope(event)
	if err != nil {
		return "", err
	}
	msg := kafka.Message{
		Key:     []byte(env.key),
		Value:   env.body,
		Time:    p.clock().UTC(),
		Headers: env.kafkaHeaders(),
	}

	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return fmt.Sprintf("%s/%s/%s", p.topic, event.OrderID, event.Type), nil
		}
		if attempt >= p.attempts || !retryableKafkaError(err) {
			return "", fmt.Errorf("publish order event: %w", err)
		}
		if serr := p.sleep(ctx, backoff.Pause()); serr != nil {
			return "", fmt.Errorf("publish order event: %w", errors.Join(err, serr))
		}
	}
}

// Close flushes pending writes and releases broker connections.
func (p *KafkaOrderEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Ready fails when no broker answers or the topic has no partitions.
func (p *KafkaOrderEventPublisher) Ready(ctx context.Context) error {
	if p == nil || p.ready == nil {
		return errors.New("kafka order publisher: not initialised")
	}
	return p.ready(ctx)
}

func checkKafkaTopic(ctx context.Context, brokers []string, topic string) error {
	var errs []error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		_ = conn.Close()
		if err != nil {
			return fmt.Errorf("kafka topic %s: %w", topic, err)
		}
		if len(partitions) == 0 {
			return fmt.Errorf("kafka topic %s has no partitions", topic)
		}
		return nil
	}
	return fmt.Errorf("kafka brokers unreachable: %w", errors.Join(errs...))
}

func retryableKafkaError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return true
}
