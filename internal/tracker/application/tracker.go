package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/metrics"
)

// Tracker follows one submitted order from Pending to its terminal outcome.
// Status events, lifecycle hooks and UI calls are applied one at a time.
//
// The delivered side effects fire only on the edge into Delivered; each one
// is recorded in the snapshot as soon as it succeeds so that neither a
// redelivered event nor a restart can repeat it.
type Tracker struct {
	log     *slog.Logger
	store   SnapshotStore
	channel EventChannel
	orders  OrderService
	session SessionProvider
	notify  Notifier
	tracer  trace.Tracer
	now     func() time.Time

	mu       sync.Mutex
	state    domain.OrderStatus
	order    *domain.OrderSnapshot
	orderID  string
	watching string
}

func NewTracker(log *slog.Logger, store SnapshotStore, channel EventChannel, orders OrderService, session SessionProvider, notify Notifier) *Tracker {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Tracker{
		log:     log,
		store:   store,
		channel: channel,
		orders:  orders,
		session: session,
		notify:  notify,
		tracer:  otel.Tracer("order-tracker"),
		now:     func() time.Time { return time.Now().UTC() },
		state:   domain.StatusIdle,
	}
}

// View is the tracker state exposed to the UI.
type View struct {
	OrderID           string             `json:"order_id,omitempty"`
	Status            domain.OrderStatus `json:"status"`
	PendingPoints     int                `json:"pending_points"`
	Items             []domain.OrderItem `json:"items,omitempty"`
	SettlementPending bool               `json:"settlement_pending"`
}

func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := View{OrderID: t.orderID, Status: t.state}
	if t.order != nil {
		v.PendingPoints = t.order.PendingPoints
		v.Items = domain.CloneItems(t.order.Items)
		v.SettlementPending = t.outstandingLocked()
	}
	return v
}

// Submit sends the order and starts tracking it. Any order tracked so far is
// dropped from memory once the new one is accepted.
func (t *Tracker) Submit(ctx context.Context, p domain.OrderPayload) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outstandingLocked() {
		return "", domain.ErrSettlementPending
	}
	if p.UserID == "" {
		p.UserID = t.session.ActiveUserID()
	}
	p.Items = domain.CloneItems(p.Items)

	orderID, err := t.orders.SubmitOrder(ctx, p)
	if err != nil {
		t.log.Error("order submission failed", "err", err)
		return "", err
	}

	t.teardownLocked(ctx)
	t.order = &domain.OrderSnapshot{
		OrderID:       orderID,
		UserID:        p.UserID,
		Status:        domain.StatusPending,
		Items:         p.Items,
		PendingPoints: p.PendingPoints,
	}
	t.orderID = orderID
	t.setStateLocked(domain.StatusPending)
	t.log.Info("order submitted", "order_id", orderID, "total_cents", p.TotalCents, "pending_points", p.PendingPoints)

	if err := t.writeLocked(ctx); err != nil {
		t.log.Error("snapshot write failed", "order_id", orderID, "err", err)
	}
	if err := t.watchLocked(ctx); err != nil {
		return orderID, err
	}
	return orderID, nil
}

// Watch (re)subscribes to status events of the tracked order. Calling it
// again is harmless.
func (t *Tracker) Watch(ctx context.Context, orderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.order == nil || t.order.OrderID != orderID || !t.state.Active() {
		return domain.ErrNoActiveOrder
	}
	return t.watchLocked(ctx)
}

// HandleEvent applies one status event. Foreign, repeated and regressing
// events are dropped.
func (t *Tracker) HandleEvent(ctx context.Context, ev domain.StatusEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applyLocked(ctx, ev)
}

// Recover resumes tracking from the durable snapshot at process start.
func (t *Tracker) Recover(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recoverLocked(ctx)
}

// Resume is the foreground hook. An order or settlement already held in
// memory is newer than the store, so it is kept and only reconciled; the
// store is read only when nothing is held.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.order == nil && t.state == domain.StatusIdle:
		return t.recoverLocked(ctx)
	case t.order == nil:
		return nil
	case t.outstandingLocked():
		t.log.Info("resumed with settlement outstanding", "order_id", t.order.OrderID)
		return nil
	}
	return t.reconcileLocked(ctx)
}

func (t *Tracker) recoverLocked(ctx context.Context) error {
	t.teardownLocked(ctx)
	t.state = domain.StatusIdle
	t.order = nil
	t.orderID = ""

	snap, err := t.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if snap == nil {
		t.log.Info("no order to recover")
		return nil
	}

	switch {
	case snap.Status == domain.StatusDelivered && !snap.Settled():
		t.order = snap
		t.orderID = snap.OrderID
		t.log.Warn("delivered order awaiting settlement", "order_id", snap.OrderID,
			"points_credited", snap.PointsCredited, "items_finalized", snap.ItemsFinalized)
		return nil
	case !snap.Status.Active():
		t.log.Info("discarding finished snapshot", "order_id", snap.OrderID, "status", snap.Status)
		return t.store.Clear(ctx)
	}

	t.order = snap
	t.orderID = snap.OrderID
	t.state = snap.Status
	t.log.Info("order recovered", "order_id", snap.OrderID, "status", snap.Status)
	return t.reconcileLocked(ctx)
}

// reconcileLocked watches the held order before asking the server about it.
// An event pushed while the status read is in flight waits on t.mu and is
// applied afterwards instead of being dropped.
func (t *Tracker) reconcileLocked(ctx context.Context) error {
	orderID := t.order.OrderID
	if err := t.watchLocked(ctx); err != nil {
		return err
	}

	serverStatus, err := t.orders.OrderStatus(ctx, orderID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		t.log.Warn("tracked order unknown to server", "order_id", orderID)
		t.teardownLocked(ctx)
		if err := t.store.Clear(ctx); err != nil {
			t.log.Error("snapshot clear failed", "order_id", orderID, "err", err)
		}
		t.order = nil
		t.setStateLocked(domain.StatusCancelled)
		t.notify.ReturnToCatalog(orderID)
		return fmt.Errorf("%w: order %s", domain.ErrStaleSnapshot, orderID)
	case err != nil:
		t.log.Warn("order status reconciliation failed", "order_id", orderID, "err", err)
		t.notify.StatusChanged(orderID, t.state)
		return nil
	}

	t.notify.StatusChanged(orderID, t.state)
	if domain.CanTransition(t.state, serverStatus) {
		return t.applyLocked(ctx, domain.StatusEvent{OrderID: orderID, Status: serverStatus})
	}
	return nil
}

// PersistOnSuspend writes the in-flight order to the snapshot store before the
// process loses the foreground.
func (t *Tracker) PersistOnSuspend(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.order == nil {
		return nil
	}
	if !t.state.Active() && !t.outstandingLocked() {
		return nil
	}
	if err := t.writeLocked(ctx); err != nil {
		return fmt.Errorf("persist on suspend: %w", err)
	}
	t.log.Info("order persisted", "order_id", t.order.OrderID, "status", t.order.Status)
	return nil
}

// Settlement returns the delivered order whose settlement has not completed,
// if any.
func (t *Tracker) Settlement() (domain.OrderSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.outstandingLocked() {
		return domain.OrderSnapshot{}, false
	}
	s := *t.order
	s.Items = domain.CloneItems(s.Items)
	return s, true
}

// RetrySettlement resumes the outstanding settlement from its last recorded
// step. It runs on user action only.
func (t *Tracker) RetrySettlement(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.outstandingLocked() {
		return domain.ErrNothingToSettle
	}
	return t.settleLocked(ctx)
}

// Logout drops the watch and all in-memory order state. The snapshot store is
// left as it is.
func (t *Tracker) Logout(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked(ctx)
	t.order = nil
	t.orderID = ""
	t.state = domain.StatusIdle
}

func (t *Tracker) applyLocked(ctx context.Context, ev domain.StatusEvent) error {
	if t.order == nil || ev.OrderID != t.order.OrderID {
		t.ignore("foreign", ev)
		return nil
	}
	if !domain.CanTransition(t.state, ev.Status) {
		cause := "regression"
		if ev.Status == t.state || t.state.Terminal() {
			cause = "duplicate"
		}
		t.ignore(cause, ev)
		return nil
	}

	ctx, span := t.tracer.Start(ctx, "ApplyStatusEvent", trace.WithAttributes(
		attribute.String("order.id", ev.OrderID),
		attribute.String("order.status.from", string(t.state)),
		attribute.String("order.status.to", string(ev.Status)),
	))
	defer span.End()

	t.setStateLocked(ev.Status)
	t.order.Status = ev.Status

	switch ev.Status {
	case domain.StatusInProgress:
		if err := t.writeLocked(ctx); err != nil {
			t.log.Error("snapshot write failed", "order_id", ev.OrderID, "err", err)
			return err
		}
		return nil

	case domain.StatusCancelled:
		if err := t.store.Clear(ctx); err != nil {
			t.log.Error("snapshot clear failed", "order_id", ev.OrderID, "err", err)
		}
		t.teardownLocked(ctx)
		t.order = nil
		t.notify.ReturnToCatalog(ev.OrderID)
		return nil

	case domain.StatusDelivered:
		if err := t.settleLocked(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}
	return nil
}

// settleLocked runs the delivered side effects. A call is made only once the
// store holds every step before it, so a restart can never lag behind a side
// effect that already happened. Any failure leaves the settlement
// outstanding for RetrySettlement.
func (t *Tracker) settleLocked(ctx context.Context) error {
	o := t.order
	ctx, span := t.tracer.Start(ctx, "SettleDeliveredOrder", trace.WithAttributes(
		attribute.String("order.id", o.OrderID),
		attribute.Int("order.pending_points", o.PendingPoints),
	))
	defer span.End()

	fail := func(err error) error {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := t.writeLocked(ctx); err != nil {
		t.log.Error("snapshot write failed", "order_id", o.OrderID, "err", err)
		return fail(fmt.Errorf("persist delivered order %s: %w", o.OrderID, err))
	}

	if !o.PointsCredited {
		if o.PendingPoints > 0 {
			userID := o.UserID
			if userID == "" {
				userID = t.session.ActiveUserID()
			}
			err := t.sideEffect(ctx, "credit_points", func() error {
				return t.orders.CreditPoints(ctx, userID, o.PendingPoints)
			})
			if err != nil {
				return fail(fmt.Errorf("credit points for order %s: %w", o.OrderID, err))
			}
		}
		o.PointsCredited = true
		if err := t.writeLocked(ctx); err != nil {
			t.log.Error("snapshot write failed", "order_id", o.OrderID, "err", err)
			return fail(fmt.Errorf("persist credited order %s: %w", o.OrderID, err))
		}
	}

	if !o.ItemsFinalized {
		err := t.sideEffect(ctx, "finalize_items", func() error {
			return t.orders.FinalizeOrderItems(ctx, o.OrderID, domain.CloneItems(o.Items))
		})
		if err != nil {
			return fail(fmt.Errorf("finalize items for order %s: %w", o.OrderID, err))
		}
		o.ItemsFinalized = true
	}

	if err := t.store.Clear(ctx); err != nil {
		// Recover discards a fully flagged snapshot, so record one if the slot
		// cannot be emptied.
		if werr := t.writeLocked(ctx); werr != nil {
			t.log.Error("settled order not recorded", "order_id", o.OrderID, "err", werr)
		}
		t.log.Error("snapshot clear failed", "order_id", o.OrderID, "err", err)
		return fail(fmt.Errorf("clear settled order %s: %w", o.OrderID, err))
	}

	t.teardownLocked(ctx)
	t.order = nil
	t.orderID = o.OrderID
	t.setStateLocked(domain.StatusFeedback)
	t.log.Info("delivered order settled", "order_id", o.OrderID, "credited_points", o.PendingPoints)
	t.notify.ReadyForFeedback(o.OrderID)
	return nil
}

func (t *Tracker) sideEffect(ctx context.Context, effect string, call func() error) error {
	start := time.Now()
	err := call()
	metrics.SideEffectDuration.WithLabelValues(effect).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SideEffects.WithLabelValues(effect, "failed").Inc()
		t.log.Error("side effect failed", "effect", effect, "order_id", t.order.OrderID, "err", err)
		return err
	}
	metrics.SideEffects.WithLabelValues(effect, "applied").Inc()
	return nil
}

func (t *Tracker) watchLocked(ctx context.Context) error {
	orderID := t.order.OrderID
	err := t.channel.Subscribe(ctx, orderID, func(ctx context.Context, ev domain.StatusEvent) {
		if err := t.HandleEvent(ctx, ev); err != nil {
			t.log.Error("status event handling failed", "order_id", ev.OrderID, "status", ev.Status, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe order %s: %w", orderID, err)
	}
	t.watching = orderID
	return nil
}

// teardownLocked drops the current subscription, if any.
func (t *Tracker) teardownLocked(ctx context.Context) {
	if t.watching == "" {
		return
	}
	if err := t.channel.Unsubscribe(ctx, t.watching); err != nil {
		t.log.Warn("unsubscribe failed", "order_id", t.watching, "err", err)
	}
	t.watching = ""
}

func (t *Tracker) writeLocked(ctx context.Context) error {
	t.order.Status = t.snapshotStatusLocked()
	t.order.UpdatedAt = t.now()
	s := *t.order
	s.Items = domain.CloneItems(s.Items)
	return t.store.Write(ctx, s)
}

func (t *Tracker) snapshotStatusLocked() domain.OrderStatus {
	if t.state == domain.StatusIdle && t.order != nil {
		return t.order.Status
	}
	return t.state
}

// outstandingLocked reports a delivered order whose settlement has not
// completed, including one whose slot could not be cleared yet.
func (t *Tracker) outstandingLocked() bool {
	return t.order != nil && t.order.Status == domain.StatusDelivered
}

func (t *Tracker) setStateLocked(next domain.OrderStatus) {
	prev := t.state
	t.state = next
	metrics.TrackerTransitions.WithLabelValues(string(prev), string(next)).Inc()
	t.notify.StatusChanged(t.orderID, next)
}

func (t *Tracker) ignore(cause string, ev domain.StatusEvent) {
	metrics.TrackerIgnoredEvents.WithLabelValues(cause).Inc()
	t.log.Debug("status event ignored", "cause", cause, "order_id", ev.OrderID, "status", ev.Status, "state", t.state)
}
