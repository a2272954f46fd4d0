package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// SnapshotStore keeps one order snapshot row per device.
type SnapshotStore struct {
	log      *slog.Logger
	pool     *pgxpool.Pool
	deviceID string
}

func NewSnapshotStore(log *slog.Logger, pool *pgxpool.Pool, deviceID string) *SnapshotStore {
	return &SnapshotStore{log: log, pool: pool, deviceID: deviceID}
}

func (s *SnapshotStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS order_snapshots (
		device_id       TEXT PRIMARY KEY,
		order_id        TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		status          TEXT NOT NULL,
		items           JSONB NOT NULL,
		pending_points  INTEGER NOT NULL,
		points_credited BOOLEAN NOT NULL DEFAULT FALSE,
		items_finalized BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at      TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create order_snapshots: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Read(ctx context.Context) (*domain.OrderSnapshot, error) {
	var (
		snap  domain.OrderSnapshot
		items []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT order_id, user_id, status, items, pending_points, points_credited, items_finalized, updated_at
		FROM order_snapshots WHERE device_id=$1`, s.deviceID).
		Scan(&snap.OrderID, &snap.UserID, &snap.Status, &items, &snap.PendingPoints, &snap.PointsCredited, &snap.ItemsFinalized, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(items, &snap.Items); err != nil {
		return nil, fmt.Errorf("decode snapshot items: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Write(ctx context.Context, snap domain.OrderSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("encode snapshot items: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO order_snapshots
			(device_id, order_id, user_id, status, items, pending_points, points_credited, items_finalized, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (device_id) DO UPDATE SET order_id=$2, user_id=$3, status=$4, items=$5,
				pending_points=$6, points_credited=$7, items_finalized=$8, updated_at=$9`,
		s.deviceID, snap.OrderID, snap.UserID, string(snap.Status), items, snap.PendingPoints,
		snap.PointsCredited, snap.ItemsFinalized, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.log.Debug("snapshot written", "order_id", snap.OrderID, "status", snap.Status)
	return nil
}

func (s *SnapshotStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM order_snapshots WHERE device_id=$1`, s.deviceID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
