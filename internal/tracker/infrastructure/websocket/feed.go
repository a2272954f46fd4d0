package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// Feed is the server end of the status socket. Each connection receives the
// updates of the orders it subscribed to.
type Feed struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type peer struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	orders map[string]struct{}
}

func NewFeed(log *slog.Logger) *Feed {
	return &Feed{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		peers:    make(map[*peer]struct{}),
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("feed upgrade failed", "err", err)
		return
	}
	p := &peer{conn: conn, orders: make(map[string]struct{})}

	f.mu.Lock()
	f.peers[p] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.peers, p)
		f.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var ctl controlFrame
		if err := conn.ReadJSON(&ctl); err != nil {
			return
		}
		p.mu.Lock()
		switch ctl.Op {
		case opSubscribe:
			p.orders[ctl.OrderID] = struct{}{}
		case opUnsubscribe:
			delete(p.orders, ctl.OrderID)
		}
		p.mu.Unlock()
	}
}

// Subscribers reports how many connections currently watch orderID.
func (f *Feed) Subscribers(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for p := range f.peers {
		p.mu.Lock()
		if _, ok := p.orders[orderID]; ok {
			n++
		}
		p.mu.Unlock()
	}
	return n
}

// Publish pushes ev to every connection watching its order.
func (f *Feed) Publish(_ context.Context, ev domain.StatusEvent) error {
	frame := statusFrame{OrderID: ev.OrderID, Status: string(ev.Status), DriverID: ev.DriverID, ClientID: ev.ClientID}

	f.mu.Lock()
	peers := make([]*peer, 0, len(f.peers))
	for p := range f.peers {
		peers = append(peers, p)
	}
	f.mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		_, ok := p.orders[ev.OrderID]
		if ok {
			if err := p.conn.WriteJSON(frame); err != nil {
				f.log.Warn("feed write failed", "order_id", ev.OrderID, "err", err)
			}
		}
		p.mu.Unlock()
	}
	return nil
}

// CloseAll drops every connection; clients are expected to redial.
func (f *Feed) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p := range f.peers {
		_ = p.conn.Close()
	}
}
