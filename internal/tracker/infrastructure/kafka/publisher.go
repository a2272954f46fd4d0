package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/tracing"
)

// EventType tags status messages in the event_type header.
const EventType = "OrderStatusChanged"

// EncodeEvent renders ev in the status topic wire format.
func EncodeEvent(ev domain.StatusEvent) ([]byte, error) {
	return json.Marshal(wireEvent{
		OrderID:  ev.OrderID,
		Status:   string(ev.Status),
		DriverID: ev.DriverID,
		ClientID: ev.ClientID,
	})
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Publisher emits order status updates keyed by order id, so every update of
// one order lands on the same partition.
type Publisher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewPublisher(log *slog.Logger, producer Producer, topic string) *Publisher {
	return &Publisher{log: log, producer: producer, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.StatusEvent) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(EventType)}}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(ev.OrderID),
		Value:   payload,
		Headers: headers,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("status publish failed", "order_id", ev.OrderID, "status", ev.Status, "err", err)
		return err
	}
	p.log.Info("status published", "order_id", ev.OrderID, "status", ev.Status)
	return nil
}
