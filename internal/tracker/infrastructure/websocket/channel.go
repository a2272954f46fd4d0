// Package websocket carries order status updates over a push socket.
//
// Client frames: {"op":"subscribe","order_id":"..."} and {"op":"unsubscribe","order_id":"..."}.
// Server frames: {"order_id":"...","status":"...","driver_id":"...","client_id":"..."}.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

type controlFrame struct {
	Op      string `json:"op"`
	OrderID string `json:"order_id"`
}

type statusFrame struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Channel keeps one socket open to the status feed and resubscribes every
// watched order after a reconnect.
type Channel struct {
	log     *slog.Logger
	url     string
	dialer  websocket.Dialer
	backoff time.Duration

	mu       sync.Mutex
	handlers map[string]application.EventHandler

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewChannel(log *slog.Logger, url string, backoff time.Duration) *Channel {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Channel{
		log:      log,
		url:      url,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:  backoff,
		handlers: make(map[string]application.EventHandler),
	}
}

// Subscribe registers h and tells the feed. While disconnected the
// registration is kept and sent on the next connect.
func (c *Channel) Subscribe(_ context.Context, orderID string, h application.EventHandler) error {
	c.mu.Lock()
	c.handlers[orderID] = h
	c.mu.Unlock()
	return c.send(controlFrame{Op: opSubscribe, OrderID: orderID})
}

func (c *Channel) Unsubscribe(_ context.Context, orderID string) error {
	c.mu.Lock()
	delete(c.handlers, orderID)
	c.mu.Unlock()
	return c.send(controlFrame{Op: opUnsubscribe, OrderID: orderID})
}

func (c *Channel) send(f controlFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.conn.WriteJSON(f); err != nil {
		c.log.Warn("control frame not sent", "op", f.Op, "order_id", f.OrderID, "err", err)
	}
	return nil
}

// Run dials, reads and redials until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("status feed disconnected", "url", c.url, "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

func (c *Channel) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.writeMu.Lock()
	c.conn = conn
	for _, id := range c.watched() {
		if err := conn.WriteJSON(controlFrame{Op: opSubscribe, OrderID: id}); err != nil {
			c.conn = nil
			c.writeMu.Unlock()
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	c.writeMu.Unlock()
	c.log.Info("status feed connected", "url", c.url)

	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
	}()

	for {
		var f statusFrame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		c.dispatch(ctx, f)
	}
}

func (c *Channel) watched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	return ids
}

func (c *Channel) dispatch(ctx context.Context, f statusFrame) {
	st, ok := domain.ParseStatus(f.Status)
	if f.OrderID == "" || !ok {
		c.log.Error("status frame rejected", "order_id", f.OrderID, "status", f.Status)
		return
	}
	c.mu.Lock()
	h, ok := c.handlers[f.OrderID]
	c.mu.Unlock()
	if !ok {
		return
	}
	h(ctx, domain.StatusEvent{OrderID: f.OrderID, Status: st, DriverID: f.DriverID, ClientID: f.ClientID})
}
