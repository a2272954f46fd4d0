package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/idempotency"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/tracing"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Channel fans status messages out to per-order handlers. Messages for orders
// nobody watches are committed and dropped.
type Channel struct {
	log    *slog.Logger
	reader MessageReader
	idem   *idempotency.Store
	tracer trace.Tracer

	mu       sync.Mutex
	handlers map[string]application.EventHandler
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

// NewChannel builds the channel. idem may be nil.
func NewChannel(log *slog.Logger, reader MessageReader, idem *idempotency.Store) *Channel {
	return &Channel{
		log:      log,
		reader:   reader,
		idem:     idem,
		tracer:   otel.Tracer("status-consumer"),
		handlers: make(map[string]application.EventHandler),
	}
}

func (c *Channel) Subscribe(_ context.Context, orderID string, h application.EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[orderID] = h
	c.log.Info("watching order", "order_id", orderID)
	return nil
}

func (c *Channel) Unsubscribe(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, orderID)
	return nil
}

func (c *Channel) handler(orderID string) (application.EventHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[orderID]
	return h, ok
}

// Run consumes until ctx is done. Handlers are invoked on this goroutine, in
// partition order.
func (c *Channel) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if c.idem != nil {
			key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
			seen, err := c.idem.Seen(ctx, key)
			if err != nil {
				c.log.Error("idempotency check failed", "err", err)
			} else if seen {
				c.log.Info("duplicate message skipped", "key", key)
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.log.Error("commit failed", "offset", msg.Offset, "err", err)
				}
				continue
			}
		}

		c.dispatch(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, msg kafka.Message) {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderStatus")
	defer span.End()

	ev, err := decodeEvent(msg.Value)
	if err != nil {
		c.log.Error("status message rejected", "offset", msg.Offset, "err", err)
		return
	}
	h, ok := c.handler(ev.OrderID)
	if !ok {
		c.log.Debug("status for unwatched order", "order_id", ev.OrderID, "status", ev.Status)
		return
	}
	h(msgCtx, ev)
}

type wireEvent struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

func decodeEvent(b []byte) (domain.StatusEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return domain.StatusEvent{}, err
	}
	st, ok := domain.ParseStatus(w.Status)
	if w.OrderID == "" || !ok {
		return domain.StatusEvent{}, domain.ErrInvalidStatusEvent
	}
	return domain.StatusEvent{OrderID: w.OrderID, Status: st, DriverID: w.DriverID, ClientID: w.ClientID}, nil
}
