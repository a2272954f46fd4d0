package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/idempotency"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/logging"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	commitErr error
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return r.commitErr
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func statusMsg(t *testing.T, offset int64, orderID, status string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(wireEvent{OrderID: orderID, Status: status})
	require.NoError(t, err)
	return kafka.Message{Topic: "order.status", Partition: 0, Offset: offset, Key: []byte(orderID), Value: b}
}

type received struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (r *received) handle(_ context.Context, ev domain.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func runChannel(t *testing.T, ch *Channel, reader *fakeReader, wantCommits int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == wantCommits }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, reader.closed)
}

func TestChannel_RoutesToWatchedOrder(t *testing.T) {
	reader := newFakeReader(
		statusMsg(t, 1, "order-1", "in_progress"),
		statusMsg(t, 2, "order-2", "delivered"),
		kafka.Message{Offset: 3, Value: []byte("{not json")},
		statusMsg(t, 4, "order-1", "teleported"),
		statusMsg(t, 5, "order-1", "canceled"),
	)
	ch := NewChannel(slog.New(slog.DiscardHandler), reader, nil)

	var got received
	require.NoError(t, ch.Subscribe(context.Background(), "order-1", got.handle))

	runChannel(t, ch, reader, 5)

	require.Equal(t, 2, got.len())
	assert.Equal(t, domain.StatusInProgress, got.events[0].Status)
	assert.Equal(t, domain.StatusCancelled, got.events[1].Status)
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	reader := newFakeReader(statusMsg(t, 1, "order-1", "delivered"))
	ch := NewChannel(slog.New(slog.DiscardHandler), reader, nil)

	var got received
	ctx := context.Background()
	require.NoError(t, ch.Subscribe(ctx, "order-1", got.handle))
	require.NoError(t, ch.Unsubscribe(ctx, "order-1"))

	runChannel(t, ch, reader, 1)
	assert.Zero(t, got.len())
}

func TestChannel_SkipsRedeliveredOffsets(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	msg := statusMsg(t, 7, "order-1", "delivered")
	reader := newFakeReader(msg, msg)
	ch := NewChannel(slog.New(slog.DiscardHandler), reader, idempotency.NewStore(rdb, "device-1", time.Hour))

	var got received
	require.NoError(t, ch.Subscribe(context.Background(), "order-1", got.handle))

	runChannel(t, ch, reader, 2)
	assert.Equal(t, 1, got.len())
}

func TestChannel_CommitFailuresAreLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	msg := statusMsg(t, 7, "order-1", "delivered")
	reader := newFakeReader(msg, msg)
	reader.commitErr = assert.AnError

	var logs bytes.Buffer
	ch := NewChannel(logging.NewWriter(&logs, "info"), reader, idempotency.NewStore(rdb, "device-1", time.Hour))

	var got received
	require.NoError(t, ch.Subscribe(context.Background(), "order-1", got.handle))

	runChannel(t, ch, reader, 2)
	assert.Equal(t, 1, got.len())
	assert.Equal(t, 2, strings.Count(logs.String(), `"msg":"commit failed"`))
}

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewPublisher(slog.New(slog.DiscardHandler), prod, "order.status")

	err := pub.Publish(context.Background(), domain.StatusEvent{OrderID: "order-9", Status: domain.StatusDelivered, DriverID: "d-1"})
	require.NoError(t, err)
	require.Len(t, prod.msgs, 1)

	msg := prod.msgs[0]
	assert.Equal(t, "order.status", msg.Topic)
	assert.Equal(t, "order-9", string(msg.Key))

	ev, err := decodeEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, ev.Status)
	assert.Equal(t, "d-1", ev.DriverID)

	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	assert.Equal(t, "OrderStatusChanged", eventType)
}

func TestPublisher_PropagatesWriteError(t *testing.T) {
	prod := &fakeProducer{err: assert.AnError}
	pub := NewPublisher(slog.New(slog.DiscardHandler), prod, "order.status")

	err := pub.Publish(context.Background(), domain.StatusEvent{OrderID: "order-9", Status: domain.StatusInProgress})
	assert.ErrorIs(t, err, assert.AnError)
}
