package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// Service is the backend side of the order API used during development and in
// end-to-end tests.
type Service struct {
	log       *slog.Logger
	repo      OrderRepository
	publisher StatusPublisher
	now       func() time.Time

	mu      sync.Mutex
	replies map[string]string
}

func NewService(log *slog.Logger, repo OrderRepository, publisher StatusPublisher) *Service {
	return &Service{
		log:       log,
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		replies:   make(map[string]string),
	}
}

// replay returns the recorded reply for a request id already handled.
func (s *Service) replay(requestID string) (string, bool) {
	if requestID == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[requestID]
	return r, ok
}

func (s *Service) record(requestID, reply string) {
	if requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[requestID] = reply
}

func (s *Service) SubmitOrder(ctx context.Context, requestID string, p tracker.OrderPayload) (string, error) {
	if id, ok := s.replay(requestID); ok {
		return id, nil
	}
	o, err := domain.NewOrder("ord_"+uuid.NewString(), p, s.now())
	if err != nil {
		return "", err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}
	s.record(requestID, o.ID)
	s.log.Info("order accepted", "order_id", o.ID, "user_id", o.UserID, "total_cents", o.TotalCents,
		"redeemed_points", o.RedeemedPoints, "pending_points", o.PendingPoints)
	return o.ID, nil
}

func (s *Service) CreditPoints(ctx context.Context, requestID, userID string, amount int) error {
	if _, ok := s.replay(requestID); ok {
		return nil
	}
	balance, err := s.repo.Credit(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	s.record(requestID, userID)
	s.log.Info("points credited", "user_id", userID, "amount", amount, "balance", balance)
	return nil
}

// FinalizeItems marks the order's lines as consumed. Finalizing twice is
// accepted so a client retrying after a lost reply is not stuck.
func (s *Service) FinalizeItems(ctx context.Context, orderID string, items []tracker.OrderItem) error {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if len(items) != len(o.Items) {
		s.log.Warn("finalize item count differs", "order_id", orderID, "submitted", len(o.Items), "finalized", len(items))
	}
	if err := o.Finalize(s.now()); errors.Is(err, domain.ErrAlreadyFinalized) {
		s.log.Info("order items already finalized", "order_id", orderID)
		return nil
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	s.log.Info("order items finalized", "order_id", orderID, "items", len(items))
	return nil
}

func (s *Service) Status(ctx context.Context, orderID string) (tracker.OrderStatus, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.repo.Balance(ctx, userID)
}

// Advance is driven by the driver and dispatcher side. The new status is
// stored first and then pushed.
func (s *Service) Advance(ctx context.Context, orderID string, to tracker.OrderStatus, driverID string) error {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := o.Advance(to, s.now()); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	ev := tracker.StatusEvent{OrderID: orderID, Status: to, DriverID: driverID, ClientID: o.UserID}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	s.log.Info("order advanced", "order_id", orderID, "status", to)
	return nil
}
