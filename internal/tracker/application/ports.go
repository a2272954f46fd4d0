package application

import (
	"context"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// SnapshotStore is the durable single-slot record of the tracked order for
// this device. Read returns nil, nil when the slot is empty.
type SnapshotStore interface {
	Read(ctx context.Context) (*domain.OrderSnapshot, error)
	Write(ctx context.Context, s domain.OrderSnapshot) error
	Clear(ctx context.Context) error
}

type EventHandler func(ctx context.Context, ev domain.StatusEvent)

// EventChannel delivers status events at least once and possibly out of
// order. Subscribe replaces any handler already registered for the order and
// must never invoke the handler before it returns.
type EventChannel interface {
	Subscribe(ctx context.Context, orderID string, h EventHandler) error
	Unsubscribe(ctx context.Context, orderID string) error
}

// OrderService is the remote order API. Transport failures are reported as
// domain.ErrNetworkFailure, unknown orders as domain.ErrOrderNotFound.
type OrderService interface {
	SubmitOrder(ctx context.Context, p domain.OrderPayload) (string, error)
	CreditPoints(ctx context.Context, userID string, amount int) error
	FinalizeOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	OrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error)
}

type SessionProvider interface {
	ActiveUserID() string
}

// Notifier is the outbound edge to the UI layer.
type Notifier interface {
	StatusChanged(orderID string, status domain.OrderStatus)
	ReturnToCatalog(orderID string)
	ReadyForFeedback(orderID string)
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(string, domain.OrderStatus) {}
func (nopNotifier) ReturnToCatalog(string)                   {}
func (nopNotifier) ReadyForFeedback(string)                  {}
