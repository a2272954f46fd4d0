package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// SnapshotStore keeps the order snapshot as one JSON value per device. The
// key never expires; the tracker clears it on terminal resolution.
type SnapshotStore struct {
	log *slog.Logger
	rdb redis.Cmdable
	key string
}

func NewSnapshotStore(log *slog.Logger, rdb redis.Cmdable, deviceID string) *SnapshotStore {
	return &SnapshotStore{log: log, rdb: rdb, key: "snapshot:" + deviceID}
}

func (s *SnapshotStore) Read(ctx context.Context) (*domain.OrderSnapshot, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap domain.OrderSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Write(ctx context.Context, snap domain.OrderSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.log.Debug("snapshot written", "order_id", snap.OrderID, "status", snap.Status)
	return nil
}

func (s *SnapshotStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
