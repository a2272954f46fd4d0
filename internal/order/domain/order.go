// Package domain models the order book kept by the development order backend.
package domain

import (
	"errors"
	"fmt"
	"time"

	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTotalMismatch     = errors.New("order total does not match items")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrAlreadyFinalized  = errors.New("order items already finalized")
)

type Order struct {
	ID             string
	UserID         string
	Items          []tracker.OrderItem
	TotalCents     int64
	RedeemedPoints int
	PendingPoints  int
	Status         tracker.OrderStatus
	Finalized      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder accepts a checkout payload. The submitted total must equal the sum
// over paid lines.
func NewOrder(id string, p tracker.OrderPayload, now time.Time) (Order, error) {
	if len(p.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	var total int64
	for _, item := range p.Items {
		if !item.IsFree {
			total += int64(item.Quantity) * item.UnitPriceCents
		}
	}
	if total != p.TotalCents {
		return Order{}, fmt.Errorf("%w: submitted %d, computed %d", ErrTotalMismatch, p.TotalCents, total)
	}
	return Order{
		ID:             id,
		UserID:         p.UserID,
		Items:          tracker.CloneItems(p.Items),
		TotalCents:     total,
		RedeemedPoints: p.RedeemedPoints,
		PendingPoints:  p.PendingPoints,
		Status:         tracker.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Advance moves the order forward along the same edges the client accepts.
func (o *Order) Advance(to tracker.OrderStatus, now time.Time) error {
	if !tracker.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) Finalize(now time.Time) error {
	if o.Finalized {
		return ErrAlreadyFinalized
	}
	o.Finalized = true
	o.UpdatedAt = now
	return nil
}
