// Package domain maps a checked-out cart onto the order the tracker submits.
package domain

import (
	redemption "github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// Payload builds the submission for userID. Items are deep copies, so later
// cart edits cannot reach the order.
func Payload(userID string, s redemption.Summary) tracker.OrderPayload {
	items := make([]tracker.OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		var opts []tracker.Option
		if len(it.Options) > 0 {
			opts = make([]tracker.Option, len(it.Options))
			for i, o := range it.Options {
				opts[i] = tracker.Option{Name: o.Name, PriceCents: o.PriceCents}
			}
		}
		items = append(items, tracker.OrderItem{
			ID:             it.ID,
			ProductID:      it.ProductID,
			Name:           it.Name,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			IsFree:         it.IsFree,
			Options:        opts,
		})
	}
	return tracker.OrderPayload{
		UserID:         userID,
		Items:          items,
		TotalCents:     s.TotalCents,
		RedeemedPoints: s.RedeemedPoints,
		PendingPoints:  s.EarnedPoints,
	}
}
