package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

var errStoreDown = errors.New("snapshot store unavailable")

// memStore keeps the snapshot as encoded bytes so that a read after a
// simulated restart goes through a real round trip. The err fields make the
// matching call fail without touching the data.
type memStore struct {
	mu       sync.Mutex
	data     []byte
	writes   int
	clears   int
	readErr  error
	writeErr error
	clearErr error
}

// down makes writes and clears fail with err; nil brings the store back.
func (s *memStore) down(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
	s.clearErr = err
}

func (s *memStore) Read(context.Context) (*domain.OrderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.data == nil {
		return nil, nil
	}
	var snap domain.OrderSnapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *memStore) Write(_ context.Context, snap domain.OrderSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data = b
	s.writes++
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.data = nil
	s.clears++
	return nil
}

// snapshot returns what is stored, ignoring readErr.
func (s *memStore) snapshot() *domain.OrderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	var snap domain.OrderSnapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil
	}
	return &snap
}

type fakeChannel struct {
	mu           sync.Mutex
	handlers     map[string]EventHandler
	subscribes   int
	unsubscribes int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string]EventHandler{}}
}

func (c *fakeChannel) Subscribe(_ context.Context, orderID string, h EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[orderID] = h
	c.subscribes++
	return nil
}

func (c *fakeChannel) Unsubscribe(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, orderID)
	c.unsubscribes++
	return nil
}

func (c *fakeChannel) subscribed(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[orderID]
	return ok
}

func (c *fakeChannel) handlerFor(orderID string) (EventHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handlers[orderID]
	return h, ok
}

// deliver pushes an event the way the channel would. It returns false when
// nobody is subscribed to the order.
func (c *fakeChannel) deliver(ev domain.StatusEvent) bool {
	c.mu.Lock()
	h, ok := c.handlers[ev.OrderID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(context.Background(), ev)
	return true
}

type creditCall struct {
	UserID string
	Amount int
}

type fakeOrders struct {
	mu          sync.Mutex
	nextID      int
	submitted   []domain.OrderPayload
	credits     []creditCall
	finalized   [][]domain.OrderItem
	status      map[string]domain.OrderStatus
	statusErr   error
	submitErr   error
	creditErr   error
	finalizeErr error
	onCredit    func()
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{status: map[string]domain.OrderStatus{}}
}

func (o *fakeOrders) SubmitOrder(_ context.Context, p domain.OrderPayload) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitErr != nil {
		return "", o.submitErr
	}
	o.nextID++
	id := fmt.Sprintf("order-%d", o.nextID)
	o.submitted = append(o.submitted, p)
	o.status[id] = domain.StatusPending
	return id, nil
}

func (o *fakeOrders) CreditPoints(_ context.Context, userID string, amount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.creditErr != nil {
		return o.creditErr
	}
	o.credits = append(o.credits, creditCall{UserID: userID, Amount: amount})
	if o.onCredit != nil {
		o.onCredit()
	}
	return nil
}

func (o *fakeOrders) FinalizeOrderItems(_ context.Context, _ string, items []domain.OrderItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finalizeErr != nil {
		return o.finalizeErr
	}
	o.finalized = append(o.finalized, items)
	return nil
}

func (o *fakeOrders) OrderStatus(_ context.Context, orderID string) (domain.OrderStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.statusErr != nil {
		return "", o.statusErr
	}
	st, ok := o.status[orderID]
	if !ok {
		return "", domain.ErrOrderNotFound
	}
	return st, nil
}

func (o *fakeOrders) setStatus(orderID string, st domain.OrderStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[orderID] = st
}

type fakeSession string

func (s fakeSession) ActiveUserID() string { return string(s) }

type notice struct {
	Kind    string
	OrderID string
	Status  domain.OrderStatus
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) StatusChanged(orderID string, status domain.OrderStatus) {
	n.add(notice{Kind: "status", OrderID: orderID, Status: status})
}

func (n *recordingNotifier) ReturnToCatalog(orderID string) {
	n.add(notice{Kind: "catalog", OrderID: orderID})
}

func (n *recordingNotifier) ReadyForFeedback(orderID string) {
	n.add(notice{Kind: "feedback", OrderID: orderID})
}

func (n *recordingNotifier) add(v notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, v)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, v := range n.notices {
		if v.Kind == kind {
			c++
		}
	}
	return c
}
