package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type OrderTracker interface {
	View() application.View
	Watch(ctx context.Context, orderID string) error
	RetrySettlement(ctx context.Context) error
	PersistOnSuspend(ctx context.Context) error
	Resume(ctx context.Context) error
	Logout(ctx context.Context)
}

type SignOut interface {
	SignOut()
}

type Handler struct {
	log     *slog.Logger
	tracker OrderTracker
	session SignOut
	hub     *UIHub
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, tracker OrderTracker, session SignOut, hub *UIHub) *Handler {
	return &Handler{
		log:     log,
		tracker: tracker,
		session: session,
		hub:     hub,
		tracer:  otel.Tracer("tracker-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the order tracking routes to r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/order", h.getOrder)
	r.Post("/order/watch", h.watch)
	r.Post("/order/settlement/retry", h.retrySettlement)
	r.Post("/lifecycle/suspend", h.suspend)
	r.Post("/lifecycle/resume", h.resume)
	r.Post("/session/logout", h.logout)
	if h.hub != nil {
		r.Handle("/ui/events", h.hub)
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.View())
}

func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "WatchOrder")
	defer span.End()

	if err := h.tracker.Watch(ctx, h.tracker.View().OrderID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.View())
}

func (h *Handler) retrySettlement(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RetrySettlement")
	defer span.End()

	if err := h.tracker.RetrySettlement(ctx); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.View())
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.PersistOnSuspend(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ResumeTracking")
	defer span.End()

	if err := h.tracker.Resume(ctx); err != nil && !errors.Is(err, domain.ErrStaleSnapshot) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.View())
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.tracker.Logout(r.Context())
	if h.session != nil {
		h.session.SignOut()
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResp struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, reason := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrNoActiveOrder):
		status, reason = http.StatusConflict, "no_active_order"
	case errors.Is(err, domain.ErrNothingToSettle):
		status, reason = http.StatusConflict, "nothing_to_settle"
	case errors.Is(err, domain.ErrNetworkFailure):
		status, reason = http.StatusBadGateway, "network_failure"
	case errors.Is(err, domain.ErrOrderNotFound):
		status, reason = http.StatusNotFound, "order_not_found"
	}
	if status == http.StatusInternalServerError {
		h.log.Error("tracker request failed", "err", err)
	}
	writeJSON(w, status, errorResp{Reason: reason, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
