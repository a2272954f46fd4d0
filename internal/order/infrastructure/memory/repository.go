package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type Repository struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	balances map[string]int
}

func NewRepository() *Repository {
	return &Repository{
		orders:   make(map[string]domain.Order),
		balances: make(map[string]int),
	}
}

func (r *Repository) Save(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.Items = tracker.CloneItems(o.Items)
	r.orders[o.ID] = o
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.Items = tracker.CloneItems(o.Items)
	return o, nil
}

func (r *Repository) Credit(_ context.Context, userID string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] += amount
	return r.balances[userID], nil
}

func (r *Repository) Balance(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID], nil
}
