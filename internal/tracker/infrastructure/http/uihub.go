package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

const (
	NoticeStatusChanged    = "status_changed"
	NoticeReturnToCatalog  = "return_to_catalog"
	NoticeReadyForFeedback = "ready_for_feedback"
)

type Notice struct {
	Kind    string             `json:"kind"`
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status,omitempty"`
}

// UIHub fans tracker notices out to connected UI shells. Notices are queued
// per connection and dropped for a connection that falls behind; the tracker
// is never blocked on a slow reader.
type UIHub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewUIHub(log *slog.Logger) *UIHub {
	return &UIHub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[chan []byte]struct{}),
	}
}

func (h *UIHub) StatusChanged(orderID string, status domain.OrderStatus) {
	h.broadcast(Notice{Kind: NoticeStatusChanged, OrderID: orderID, Status: status})
}

func (h *UIHub) ReturnToCatalog(orderID string) {
	h.broadcast(Notice{Kind: NoticeReturnToCatalog, OrderID: orderID})
}

func (h *UIHub) ReadyForFeedback(orderID string) {
	h.broadcast(Notice{Kind: NoticeReadyForFeedback, OrderID: orderID})
}

func (h *UIHub) broadcast(n Notice) {
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- b:
		default:
			h.log.Warn("ui notice dropped", "kind", n.Kind, "order_id", n.OrderID)
		}
	}
}

func (h *UIHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *UIHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ui upgrade failed", "err", err)
		return
	}
	send := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[send] = struct{}{}
	h.mu.Unlock()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, send)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case b := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
