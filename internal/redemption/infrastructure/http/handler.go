package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
)

// Checkouter places the order for the current cart and returns its id.
type Checkouter interface {
	PlaceOrder(ctx context.Context) (string, error)
}

type Handler struct {
	log      *slog.Logger
	engine   *application.Engine
	checkout Checkouter
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, engine *application.Engine, checkout Checkouter) *Handler {
	return &Handler{
		log:      log,
		engine:   engine,
		checkout: checkout,
		tracer:   otel.Tracer("cart-http"),
	}
}

type loadCartReq struct {
	PointsBalance int               `json:"points_balance"`
	Items         []domain.CartItem `json:"items"`
}

type quantityReq struct {
	Delta int `json:"delta"`
}

type balanceReq struct {
	PointsBalance int `json:"points_balance"`
}

type itemView struct {
	domain.CartItem
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type cartView struct {
	Items                []itemView `json:"items"`
	Total                string     `json:"total"`
	TotalCents           int64      `json:"total_cents"`
	PointsBalance        int        `json:"points_balance"`
	InitialPointsBalance int        `json:"initial_points_balance"`
	RedeemedPoints       int        `json:"redeemed_points"`
	EarnedPoints         int        `json:"earned_points"`
	CheckedOut           bool       `json:"checked_out"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/cart", h.getCart)
	r.Put("/cart", h.loadCart)
	r.Post("/cart/items/{id}/toggle-free", h.toggleFree)
	r.Post("/cart/items/{id}/quantity", h.changeQuantity)
	r.Delete("/cart/items/{id}", h.deleteItem)
	r.Post("/cart/balance", h.syncBalance)
	r.Post("/cart/checkout", h.placeOrder)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.engine.Cart(), nil)
}

func (h *Handler) loadCart(w http.ResponseWriter, r *http.Request) {
	var req loadCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.engine.Load(req.PointsBalance, req.Items)
	h.respond(w, c, err)
}

func (h *Handler) toggleFree(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.ToggleFree(chi.URLParam(r, "id"))
	h.respond(w, c, err)
}

func (h *Handler) changeQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.engine.ChangeQuantity(chi.URLParam(r, "id"), req.Delta)
	h.respond(w, c, err)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.DeleteItem(chi.URLParam(r, "id"))
	h.respond(w, c, err)
}

func (h *Handler) syncBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.engine.SyncBalance(req.PointsBalance)
	h.respond(w, c, err)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	orderID, err := h.checkout.PlaceOrder(ctx)
	if err != nil {
		if domain.ReasonOf(err) != "" {
			writeRejection(w, err)
			return
		}
		h.log.Error("place order failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResp{Reason: "submission_failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "order_id": orderID})
}

func (h *Handler) respond(w http.ResponseWriter, c domain.Cart, err error) {
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(c))
}

func (h *Handler) view(c domain.Cart) cartView {
	items := c.Items()
	v := cartView{
		Items:                make([]itemView, 0, len(items)),
		Total:                money(c.ComputeTotal()),
		TotalCents:           c.ComputeTotal(),
		PointsBalance:        c.PointsBalance(),
		InitialPointsBalance: c.InitialPointsBalance(),
		RedeemedPoints:       c.RedeemedPoints(),
		EarnedPoints:         h.engine.EarnedPoints(),
		CheckedOut:           c.CheckedOut(),
	}
	for _, it := range items {
		line := it.UnitPriceCents * int64(it.Quantity)
		if it.IsFree {
			line = 0
		}
		v.Items = append(v.Items, itemView{CartItem: it, UnitPrice: money(it.UnitPriceCents), LineTotal: money(line)})
	}
	return v
}

func money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

type errorResp struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrQuantityBelowMinimum), errors.Is(err, domain.ErrInvalidItem), errors.Is(err, domain.ErrEmptyCart):
		status = http.StatusUnprocessableEntity
	}
	reason := string(domain.ReasonOf(err))
	if reason == "" {
		reason = "internal"
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResp{Reason: reason, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
