package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *memStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for i := range s.events {
		if s.events[i].Status == StatusPending && len(out) < batchSize {
			s.events[i].Status = StatusInProgress
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	return s.mark(ids, StatusSent, "")
}

func (s *memStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	return s.mark([]int64{id}, StatusFailed, errMsg)
}

func (s *memStore) mark(ids []int64, st Status, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for i := range s.events {
			if s.events[i].ID == id {
				s.events[i].Status = st
				if msg != "" {
					s.events[i].LastError = &msg
					s.events[i].RetryCount++
				}
			}
		}
	}
	return nil
}

func (s *memStore) statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.events))
	for i, e := range s.events {
		out[i] = e.Status
	}
	return out
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail string
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == p.fail {
			return errors.New("broker rejected")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func TestRelay_DispatchesPendingInOrder(t *testing.T) {
	store := &memStore{events: []Event{
		{ID: 1, AggregateID: "o-1", Type: "OrderStatusChanged", Payload: []byte(`{"status":"in_progress"}`), Traceparent: "00-abc-def-01", Status: StatusPending},
		{ID: 2, AggregateID: "o-bad", Type: "OrderStatusChanged", Status: StatusPending},
		{ID: 3, AggregateID: "o-1", Type: "OrderStatusChanged", Payload: []byte(`{"status":"delivered"}`), Status: StatusPending},
	}}
	prod := &fakeProducer{fail: "o-bad"}
	log := slog.New(slog.DiscardHandler)
	relay := NewRelay(log, store, NewDispatcher(log, prod, "order.status"), "relay-1").WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := store.statuses()
		return st[0] == StatusSent && st[1] == StatusFailed && st[2] == StatusSent
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	prod.mu.Lock()
	defer prod.mu.Unlock()
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "order.status", prod.msgs[0].Topic)
	assert.Equal(t, `{"status":"in_progress"}`, string(prod.msgs[0].Value))
	assert.Equal(t, `{"status":"delivered"}`, string(prod.msgs[1].Value))

	headers := map[string]string{}
	for _, h := range prod.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderStatusChanged", headers["event_type"])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
	assert.Equal(t, 1, store.events[1].RetryCount)
}
