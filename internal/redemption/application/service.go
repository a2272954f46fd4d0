package application

import (
	"log/slog"
	"sync"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/metrics"
)

// Engine owns the cart shown on the cart screen. All mutations go through it
// one at a time; a rejected mutation leaves the held cart untouched.
type Engine struct {
	log    *slog.Logger
	policy domain.EarnPolicy

	mu   sync.Mutex
	cart domain.Cart
}

func NewEngine(log *slog.Logger, policy domain.EarnPolicy) *Engine {
	return &Engine{log: log, policy: policy}
}

// Load replaces the cart at screen entry.
func (e *Engine) Load(pointsBalance int, items []domain.CartItem) (domain.Cart, error) {
	c, err := domain.NewCart(pointsBalance, items)
	if err != nil {
		return e.rejected("load", err)
	}
	e.mu.Lock()
	e.cart = c
	e.mu.Unlock()
	e.log.Info("cart loaded", "items", c.Len(), "points", pointsBalance)
	return c, nil
}

func (e *Engine) Cart() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart
}

// EarnedPoints is what the current cart would earn once delivered.
func (e *Engine) EarnedPoints() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Earned(e.cart)
}

func (e *Engine) ToggleFree(itemID string) (domain.Cart, error) {
	return e.apply("toggle_free", func(c domain.Cart) (domain.Cart, error) {
		return c.ToggleFree(itemID)
	})
}

func (e *Engine) ChangeQuantity(itemID string, delta int) (domain.Cart, error) {
	return e.apply("change_quantity", func(c domain.Cart) (domain.Cart, error) {
		return c.ChangeQuantity(itemID, delta)
	})
}

func (e *Engine) DeleteItem(itemID string) (domain.Cart, error) {
	return e.apply("delete_item", func(c domain.Cart) (domain.Cart, error) {
		return c.DeleteItem(itemID)
	})
}

// SyncBalance rebases the cart on a freshly fetched points balance.
func (e *Engine) SyncBalance(serverBalance int) (domain.Cart, error) {
	var reset bool
	c, err := e.apply("sync_balance", func(c domain.Cart) (domain.Cart, error) {
		next, changed, err := c.SyncBalance(serverBalance)
		reset = changed
		return next, err
	})
	if err == nil && reset {
		e.log.Info("points balance changed externally", "balance", serverBalance, "free_items", c.FreeCount())
	}
	return c, err
}

// Checkout freezes the cart and returns what gets submitted.
func (e *Engine) Checkout() (domain.Summary, error) {
	var summary domain.Summary
	_, err := e.apply("checkout", func(c domain.Cart) (domain.Cart, error) {
		next, s, err := c.Checkout(e.policy)
		summary = s
		return next, err
	})
	return summary, err
}

// Reopen unfreezes the cart when submission did not go through.
func (e *Engine) Reopen() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart = e.cart.Reopen()
	return e.cart
}

func (e *Engine) apply(op string, fn func(domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.cart)
	if err != nil {
		return e.rejectedLocked(op, err)
	}
	e.cart = next
	metrics.CartMutations.WithLabelValues(op).Inc()
	return next, nil
}

func (e *Engine) rejected(op string, err error) (domain.Cart, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rejectedLocked(op, err)
}

func (e *Engine) rejectedLocked(op string, err error) (domain.Cart, error) {
	reason := domain.ReasonOf(err)
	metrics.CartRejections.WithLabelValues(op, string(reason)).Inc()
	e.log.Info("cart mutation rejected", "op", op, "reason", reason, "err", err)
	return e.cart, err
}
