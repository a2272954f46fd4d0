package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/orchestrator/domain"
	redemption "github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type CartCheckout interface {
	Checkout() (redemption.Summary, error)
	Reopen() redemption.Cart
}

type OrderSubmitter interface {
	Submit(ctx context.Context, p tracker.OrderPayload) (string, error)
}

type SessionProvider interface {
	ActiveUserID() string
}

// Coordinator hands a checked-out cart to the order tracker. A failed
// submission reopens the cart so the user can retry.
type Coordinator struct {
	log     *slog.Logger
	cart    CartCheckout
	orders  OrderSubmitter
	session SessionProvider
}

func NewCoordinator(log *slog.Logger, cart CartCheckout, orders OrderSubmitter, session SessionProvider) *Coordinator {
	return &Coordinator{log: log, cart: cart, orders: orders, session: session}
}

func (c *Coordinator) PlaceOrder(ctx context.Context) (string, error) {
	summary, err := c.cart.Checkout()
	if err != nil {
		return "", err
	}

	p := domain.Payload(c.session.ActiveUserID(), summary)
	orderID, err := c.orders.Submit(ctx, p)
	if err != nil {
		c.cart.Reopen()
		c.log.Warn("order submission failed, cart reopened", "err", err)
		return "", fmt.Errorf("place order: %w", err)
	}

	c.log.Info("order placed", "order_id", orderID, "total_cents", p.TotalCents,
		"redeemed_points", p.RedeemedPoints, "pending_points", p.PendingPoints)
	return orderID, nil
}
