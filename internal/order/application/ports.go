package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// OrderRepository stores orders and the loyalty ledger. Save upserts.
type OrderRepository interface {
	Save(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	Credit(ctx context.Context, userID string, amount int) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// StatusPublisher pushes status changes to watching clients.
type StatusPublisher interface {
	Publish(ctx context.Context, ev tracker.StatusEvent) error
}

// Publishers fans one status change out to every transport. All are tried;
// the errors are joined.
type Publishers []StatusPublisher

func (ps Publishers) Publish(ctx context.Context, ev tracker.StatusEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
