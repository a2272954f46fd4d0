package domain

import "errors"

var (
	// ErrNetworkFailure wraps transport failures of submission and side effect
	// calls. Callers retry on user action only.
	ErrNetworkFailure = errors.New("network failure")
	ErrOrderNotFound  = errors.New("order not found")
	// ErrStaleSnapshot means the recovered order is unknown to the server; the
	// order is treated as cancelled locally.
	ErrStaleSnapshot      = errors.New("stale order snapshot")
	ErrNoActiveOrder      = errors.New("no active order")
	ErrNothingToSettle    = errors.New("no delivered order awaiting settlement")
	ErrSettlementPending  = errors.New("previous delivered order is not settled yet")
	ErrInvalidStatusEvent = errors.New("invalid status event")
)
