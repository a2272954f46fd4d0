package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			total_cents     BIGINT NOT NULL,
			redeemed_points INTEGER NOT NULL,
			pending_points  INTEGER NOT NULL,
			status          TEXT NOT NULL,
			finalized       BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS order_items (
			order_id         TEXT NOT NULL REFERENCES orders(id),
			line_id          TEXT NOT NULL,
			position         INTEGER NOT NULL,
			product_id       TEXT NOT NULL,
			name             TEXT NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			quantity         INTEGER NOT NULL,
			is_free          BOOLEAN NOT NULL,
			options          JSONB,
			PRIMARY KEY (order_id, line_id)
		);
		CREATE TABLE IF NOT EXISTS loyalty_balances (
			user_id TEXT PRIMARY KEY,
			points  INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

func (r *Repository) Save(ctx context.Context, o domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, user_id, total_cents, redeemed_points, pending_points, status, finalized, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET status=$6, finalized=$7, updated_at=$9`,
		o.ID, o.UserID, o.TotalCents, o.RedeemedPoints, o.PendingPoints, string(o.Status), o.Finalized, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		opts, err := json.Marshal(item.Options)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO order_items (order_id, line_id, position, product_id, name, unit_price_cents, quantity, is_free, options)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (order_id, line_id) DO NOTHING`,
			o.ID, item.ID, i, item.ProductID, item.Name, item.UnitPriceCents, item.Quantity, item.IsFree, opts)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, total_cents, redeemed_points, pending_points, status, finalized, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.TotalCents, &o.RedeemedPoints, &o.PendingPoints, &status, &o.Finalized, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = tracker.OrderStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT line_id, product_id, name, unit_price_cents, quantity, is_free, options
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item tracker.OrderItem
			opts []byte
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.UnitPriceCents, &item.Quantity, &item.IsFree, &opts); err != nil {
			return domain.Order{}, err
		}
		if len(opts) > 0 {
			if err := json.Unmarshal(opts, &item.Options); err != nil {
				return domain.Order{}, err
			}
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) Credit(ctx context.Context, userID string, amount int) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `INSERT INTO loyalty_balances (user_id, points) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET points = loyalty_balances.points + $2
		RETURNING points`, userID, amount).Scan(&balance)
	return balance, err
}

func (r *Repository) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT points FROM loyalty_balances WHERE user_id=$1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}
