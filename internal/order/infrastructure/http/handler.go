package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// Handler lets an operator play the driver and dispatcher roles.
type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-admin-http"),
	}
}

type advanceReq struct {
	Status   string `json:"status"`
	DriverID string `json:"driver_id"`
}

type orderResp struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	Status         tracker.OrderStatus `json:"status"`
	TotalCents     int64               `json:"total_cents"`
	RedeemedPoints int                 `json:"redeemed_points"`
	PendingPoints  int                 `json:"pending_points"`
	Finalized      bool                `json:"finalized"`
	Items          []tracker.OrderItem `json:"items"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.advance)
	r.Get("/users/{id}/points", h.getBalance)
	return r
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdvanceOrder")
	defer span.End()

	var req advanceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	st, ok := tracker.ParseStatus(req.Status)
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.Advance(ctx, id, st, req.DriverID); err != nil {
		h.log.Warn("advance rejected", "order_id", id, "status", st, "err", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(st), "order_id": id})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orderResp{
		ID:             o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		TotalCents:     o.TotalCents,
		RedeemedPoints: o.RedeemedPoints,
		PendingPoints:  o.PendingPoints,
		Finalized:      o.Finalized,
		Items:          o.Items,
	})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.service.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"points": bal})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
