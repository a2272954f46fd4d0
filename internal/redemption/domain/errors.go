package domain

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonInvalidRedemptionOrder Reason = "invalid_redemption_order"
	ReasonInvalidReleaseOrder    Reason = "invalid_release_order"
	ReasonInsufficientPoints     Reason = "insufficient_points"
	ReasonPayableFloorViolation  Reason = "payable_floor_violation"
	ReasonQuantityBelowMinimum   Reason = "quantity_below_minimum"
	ReasonItemNotFound           Reason = "item_not_found"
	ReasonCartCheckedOut         Reason = "cart_checked_out"
	ReasonEmptyCart              Reason = "empty_cart"
	ReasonInvalidItem            Reason = "invalid_item"
)

var (
	ErrInvalidRedemptionOrder = errors.New("redeem the cheapest item first")
	ErrInvalidReleaseOrder    = errors.New("release the most expensive free item first")
	ErrInsufficientPoints     = errors.New("insufficient points")
	ErrPayableFloorViolation  = errors.New("at least one paid item must stay in the cart")
	ErrQuantityBelowMinimum   = errors.New("quantity cannot go below 1")
	ErrItemNotFound           = errors.New("item not in cart")
	ErrCartCheckedOut         = errors.New("cart is already checked out")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidItem            = errors.New("invalid cart item")
)

var sentinels = map[Reason]error{
	ReasonInvalidRedemptionOrder: ErrInvalidRedemptionOrder,
	ReasonInvalidReleaseOrder:    ErrInvalidReleaseOrder,
	ReasonInsufficientPoints:     ErrInsufficientPoints,
	ReasonPayableFloorViolation:  ErrPayableFloorViolation,
	ReasonQuantityBelowMinimum:   ErrQuantityBelowMinimum,
	ReasonItemNotFound:           ErrItemNotFound,
	ReasonCartCheckedOut:         ErrCartCheckedOut,
	ReasonEmptyCart:              ErrEmptyCart,
	ReasonInvalidItem:            ErrInvalidItem,
}

// Rejection is returned by every cart mutation that leaves the cart unchanged.
// Reason selects the message the UI shows; errors.Is matches the sentinel.
type Rejection struct {
	Reason  Reason
	ItemID  string
	Message string
}

func (r *Rejection) Error() string {
	if r.ItemID == "" {
		return r.Message
	}
	return fmt.Sprintf("%s (item %s)", r.Message, r.ItemID)
}

func (r *Rejection) Unwrap() error { return sentinels[r.Reason] }

func reject(reason Reason, itemID string) *Rejection {
	msg := string(reason)
	if err, ok := sentinels[reason]; ok {
		msg = err.Error()
	}
	return &Rejection{Reason: reason, ItemID: itemID, Message: msg}
}

func rejectf(reason Reason, itemID, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, ItemID: itemID, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason, or "" for any other error.
func ReasonOf(err error) Reason {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}
