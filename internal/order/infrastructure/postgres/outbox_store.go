package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	statuskafka "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/kafka"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/outbox"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/tracing"
)

// OutboxStore queues status events in Postgres for the relay. It is also the
// backend's StatusPublisher in durable mode.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS outbox (
		id           BIGSERIAL PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		type         TEXT NOT NULL,
		payload      BYTEA NOT NULL,
		headers      JSONB,
		traceparent  TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'pending',
		relay_id     TEXT,
		lease_until  TIMESTAMPTZ,
		retry_count  INTEGER NOT NULL DEFAULT 0,
		last_error   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

func (s *OutboxStore) Publish(ctx context.Context, ev tracker.StatusEvent) error {
	payload, err := statuskafka.EncodeEvent(ev)
	if err != nil {
		return err
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	_, err = s.pool.Exec(ctx, `INSERT INTO outbox (aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,'pending')`,
		ev.OrderID, statuskafka.EventType, payload, carrier.Get(tracing.TraceparentHeader))
	if err != nil {
		return fmt.Errorf("enqueue status: %w", err)
	}
	s.log.Debug("status queued", "order_id", ev.OrderID, "status", ev.Status)
	return nil
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, type, payload, headers, traceparent, created_at
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.Type, &event.Payload, &event.Headers, &event.Traceparent, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`, relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1 WHERE id=$1`, id, errMsg)
	return err
}
