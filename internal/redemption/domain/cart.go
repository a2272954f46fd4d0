package domain

import "sort"

type Option struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// CartItem is one line of the cart. UnitPriceCents already includes the
// selected options; Options are kept for display and finalization.
type CartItem struct {
	ID             string   `json:"id"`
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Quantity       int      `json:"quantity"`
	IsFree         bool     `json:"is_free"`
	Options        []Option `json:"options,omitempty"`
}

func (i CartItem) clone() CartItem {
	if i.Options != nil {
		i.Options = append([]Option(nil), i.Options...)
	}
	return i
}

// Cart is a value: every mutation returns a new Cart or a *Rejection and never
// touches the receiver. Items are held in insertion order, which is the
// tie-break for equal prices.
//
// Free items always form a prefix of the price rank (cheapest first), the
// balance always equals the initial balance minus the free quantity, and a
// cart holding free items always keeps at least one paid item.
type Cart struct {
	items          []CartItem
	balance        int
	initialBalance int
	checkedOut     bool
}

// NewCart loads the cart at screen entry. Redemption decisions start over, so
// incoming free flags are cleared.
func NewCart(pointsBalance int, items []CartItem) (Cart, error) {
	if pointsBalance < 0 {
		return Cart{}, rejectf(ReasonInvalidItem, "", "points balance cannot be negative")
	}
	seen := make(map[string]struct{}, len(items))
	c := Cart{
		items:          make([]CartItem, 0, len(items)),
		balance:        pointsBalance,
		initialBalance: pointsBalance,
	}
	for _, item := range items {
		switch {
		case item.ID == "":
			return Cart{}, rejectf(ReasonInvalidItem, "", "item id is required")
		case item.Quantity < 1:
			return Cart{}, rejectf(ReasonInvalidItem, item.ID, "quantity must be positive")
		case item.UnitPriceCents < 0:
			return Cart{}, rejectf(ReasonInvalidItem, item.ID, "price cannot be negative")
		}
		if _, dup := seen[item.ID]; dup {
			return Cart{}, rejectf(ReasonInvalidItem, item.ID, "duplicate item id")
		}
		seen[item.ID] = struct{}{}
		item = item.clone()
		item.IsFree = false
		c.items = append(c.items, item)
	}
	return c, nil
}

func (c Cart) clone() Cart {
	next := c
	next.items = make([]CartItem, len(c.items))
	for i, item := range c.items {
		next.items[i] = item.clone()
	}
	return next
}

// Items returns a copy of the items ordered by price rank.
func (c Cart) Items() []CartItem {
	ranked := make([]CartItem, len(c.items))
	for i, item := range c.items {
		ranked[i] = item.clone()
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].UnitPriceCents < ranked[b].UnitPriceCents
	})
	return ranked
}

func (c Cart) Item(id string) (CartItem, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.items[i].clone(), true
	}
	return CartItem{}, false
}

func (c Cart) PointsBalance() int        { return c.balance }
func (c Cart) InitialPointsBalance() int { return c.initialBalance }
func (c Cart) CheckedOut() bool          { return c.checkedOut }
func (c Cart) Len() int                  { return len(c.items) }

// RedeemedPoints is the free quantity currently paid for with points.
func (c Cart) RedeemedPoints() int {
	n := 0
	for _, item := range c.items {
		if item.IsFree {
			n += item.Quantity
		}
	}
	return n
}

func (c Cart) FreeCount() int {
	n := 0
	for _, item := range c.items {
		if item.IsFree {
			n++
		}
	}
	return n
}

func (c Cart) PayableCount() int { return len(c.items) - c.FreeCount() }

// ComputeTotal sums unit price times quantity over paid items only.
func (c Cart) ComputeTotal() int64 {
	var total int64
	for _, item := range c.items {
		if !item.IsFree {
			total += item.UnitPriceCents * int64(item.Quantity)
		}
	}
	return total
}

// ToggleFree redeems the cheapest paid item or releases the most expensive
// free one. Any other target is rejected.
func (c Cart) ToggleFree(itemID string) (Cart, error) {
	if c.checkedOut {
		return c, reject(ReasonCartCheckedOut, "")
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return c, reject(ReasonItemNotFound, itemID)
	}
	item := c.items[idx]
	ranked := c.Items()

	next := c.clone()
	if !item.IsFree {
		if cheapest, ok := firstPaid(ranked); !ok || cheapest.ID != itemID {
			return c, reject(ReasonInvalidRedemptionOrder, itemID)
		}
		if c.PayableCount() == 1 {
			return c, reject(ReasonPayableFloorViolation, itemID)
		}
		if c.balance < item.Quantity {
			return c, rejectf(ReasonInsufficientPoints, itemID, "need %d points, have %d", item.Quantity, c.balance)
		}
		next.items[idx].IsFree = true
		next.balance -= item.Quantity
		return next, nil
	}

	if top, ok := lastFree(ranked); !ok || top.ID != itemID {
		return c, reject(ReasonInvalidReleaseOrder, itemID)
	}
	next.items[idx].IsFree = false
	next.balance += item.Quantity
	return next, nil
}

// ChangeQuantity adds delta to the item's quantity. A free item spends or
// refunds one point per unit of delta.
func (c Cart) ChangeQuantity(itemID string, delta int) (Cart, error) {
	if c.checkedOut {
		return c, reject(ReasonCartCheckedOut, "")
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return c, reject(ReasonItemNotFound, itemID)
	}
	item := c.items[idx]
	qty := item.Quantity + delta
	if qty < 1 {
		return c, reject(ReasonQuantityBelowMinimum, itemID)
	}
	balance := c.balance
	if item.IsFree {
		balance -= delta
		if balance < 0 {
			return c, rejectf(ReasonInsufficientPoints, itemID, "need %d points, have %d", delta, c.balance)
		}
	}
	next := c.clone()
	next.items[idx].Quantity = qty
	next.balance = balance
	return next, nil
}

// DeleteItem removes the item and refunds its points if it was free. The last
// paid item cannot be removed while free items remain.
func (c Cart) DeleteItem(itemID string) (Cart, error) {
	if c.checkedOut {
		return c, reject(ReasonCartCheckedOut, "")
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return c, reject(ReasonItemNotFound, itemID)
	}
	item := c.items[idx]
	if !item.IsFree && c.PayableCount() == 1 && c.FreeCount() > 0 {
		return c, reject(ReasonPayableFloorViolation, itemID)
	}
	next := c.clone()
	next.items = append(next.items[:idx], next.items[idx+1:]...)
	if item.IsFree {
		next.balance += item.Quantity
	}
	return next, nil
}

// SyncBalance reconciles the cart with a balance reported by the server. When
// the balance moved since screen entry it rebases the cart; if the new balance
// no longer covers the current redemptions every free item is released.
func (c Cart) SyncBalance(serverBalance int) (Cart, bool, error) {
	if c.checkedOut {
		return c, false, reject(ReasonCartCheckedOut, "")
	}
	if serverBalance < 0 {
		return c, false, rejectf(ReasonInvalidItem, "", "points balance cannot be negative")
	}
	if serverBalance == c.initialBalance {
		return c, false, nil
	}
	next := c.clone()
	redeemed := c.RedeemedPoints()
	if serverBalance < redeemed {
		for i := range next.items {
			next.items[i].IsFree = false
		}
		redeemed = 0
	}
	next.initialBalance = serverBalance
	next.balance = serverBalance - redeemed
	return next, true, nil
}

// EarnPolicy decides how many points a delivered order earns.
type EarnPolicy struct {
	PointsPerPaidUnit int
}

func (p EarnPolicy) Earned(c Cart) int {
	units := 0
	for _, item := range c.items {
		if !item.IsFree {
			units += item.Quantity
		}
	}
	return units * p.PointsPerPaidUnit
}

// Summary is the frozen cart handed over at checkout. Items are copies.
type Summary struct {
	Items          []CartItem
	TotalCents     int64
	RedeemedPoints int
	EarnedPoints   int
}

// Checkout freezes the cart and recomputes the total from the items.
func (c Cart) Checkout(policy EarnPolicy) (Cart, Summary, error) {
	if c.checkedOut {
		return c, Summary{}, reject(ReasonCartCheckedOut, "")
	}
	if len(c.items) == 0 {
		return c, Summary{}, reject(ReasonEmptyCart, "")
	}
	next := c.clone()
	next.checkedOut = true
	return next, Summary{
		Items:          c.Items(),
		TotalCents:     c.ComputeTotal(),
		RedeemedPoints: c.RedeemedPoints(),
		EarnedPoints:   policy.Earned(c),
	}, nil
}

// Reopen makes a checked-out cart editable again after a failed submission.
func (c Cart) Reopen() Cart {
	next := c.clone()
	next.checkedOut = false
	return next
}

func (c Cart) indexOf(id string) int {
	for i, item := range c.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func firstPaid(ranked []CartItem) (CartItem, bool) {
	for _, item := range ranked {
		if !item.IsFree {
			return item, true
		}
	}
	return CartItem{}, false
}

func lastFree(ranked []CartItem) (CartItem, bool) {
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].IsFree {
			return ranked[i], true
		}
	}
	return CartItem{}, false
}
