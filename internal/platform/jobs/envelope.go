package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/marketline/api/internal/services"
)

// attribute names in the order they are emitted as Kafka headers.
var envelopeKeys = []string{"type", "orderId", "sellerId", "status"}

// envelope is the broker-neutral form of an order event: a JSON body plus the routing metadata
// subscribers filter on. Buyer and rider ids stay in the body only.
type envelope struct {
	key   string
	body  []byte
	attrs map[string]string
}

func newEnvelope(event services.OrderEvent) (envelope, error) {
	if strings.TrimSpace(event.OrderID) == "" {
		return envelope{}, errors.New("order event: order id is required")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return envelope{}, fmt.Errorf("marshal order event: %w", err)
	}
	values := map[string]string{
		"type":     event.Type,
		"orderId":  event.OrderID,
		"sellerId": event.SellerID,
		"status":   event.CurrentStatus,
	}
	attrs := make(map[string]string, len(values))
	for k, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			attrs[k] = v
		}
	}
	return envelope{key: event.OrderID, body: body, attrs: attrs}, nil
}

func (e envelope) kafkaHeaders() []kafka.Header {
	headers := make([]kafka.Header, 0, len(e.attrs))
	for _, k := range envelopeKeys {
		if v, ok := e.attrs[k]; ok {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return headers
}
