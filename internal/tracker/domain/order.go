package domain

import "time"

type OrderStatus string

const (
	StatusIdle       OrderStatus = "idle"
	StatusPending    OrderStatus = "pending"
	StatusInProgress OrderStatus = "in_progress"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusFeedback   OrderStatus = "feedback"
)

func ParseStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusInProgress, StatusDelivered, StatusCancelled:
		return st, true
	case "canceled":
		return StatusCancelled, true
	}
	return "", false
}

// Terminal reports whether no further status event can move the order.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusFeedback
}

// Active reports whether an order in this status is still being tracked.
func (s OrderStatus) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusInProgress, StatusDelivered, StatusCancelled},
	StatusInProgress: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether an inbound status moves the machine forward.
// Everything else, including a repeat of the current status, is a no-op.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderItem is the order-side copy of a cart line.
type OrderItem struct {
	ID             string   `json:"id"`
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name,omitempty"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Quantity       int      `json:"quantity"`
	IsFree         bool     `json:"is_free"`
	Options        []Option `json:"options,omitempty"`
}

type Option struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

func CloneItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	out := make([]OrderItem, len(items))
	for i, item := range items {
		if item.Options != nil {
			item.Options = append([]Option(nil), item.Options...)
		}
		out[i] = item
	}
	return out
}

// OrderPayload is what checkout submits to the order service.
type OrderPayload struct {
	UserID         string      `json:"user_id"`
	Items          []OrderItem `json:"items"`
	TotalCents     int64       `json:"total_cents"`
	RedeemedPoints int         `json:"redeemed_points"`
	PendingPoints  int         `json:"pending_points"`
}

// StatusEvent is one status update from the push channel.
type StatusEvent struct {
	OrderID  string      `json:"order_id"`
	Status   OrderStatus `json:"status"`
	DriverID string      `json:"driver_id,omitempty"`
	ClientID string      `json:"client_id,omitempty"`
}

// OrderSnapshot is the durable record of the tracked order. PointsCredited and
// ItemsFinalized record which delivered side effects already went through.
type OrderSnapshot struct {
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	Items          []OrderItem `json:"items"`
	PendingPoints  int         `json:"pending_points"`
	PointsCredited bool        `json:"points_credited,omitempty"`
	ItemsFinalized bool        `json:"items_finalized,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Settled reports whether both delivered side effects have been applied.
func (s OrderSnapshot) Settled() bool {
	return s.PointsCredited && s.ItemsFinalized
}
