package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/infrastructure/memory"
	tracker "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type countingPublisher struct{ n int }

func (p *countingPublisher) Publish(context.Context, tracker.StatusEvent) error {
	p.n++
	return nil
}

func TestHandler_Advance(t *testing.T) {
	pub := &countingPublisher{}
	svc := application.NewService(slog.New(slog.DiscardHandler), memory.NewRepository(), pub)
	id, err := svc.SubmitOrder(context.Background(), "", tracker.OrderPayload{
		UserID:     "u-1",
		Items:      []tracker.OrderItem{{ID: "A", UnitPriceCents: 100, Quantity: 1}},
		TotalCents: 100,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(slog.New(slog.DiscardHandler), svc).Routes())
	t.Cleanup(srv.Close)

	post := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusAccepted, post("/orders/"+id+"/status", `{"status":"in_progress","driver_id":"d-1"}`).StatusCode)
	assert.Equal(t, http.StatusConflict, post("/orders/"+id+"/status", `{"status":"pending"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("/orders/"+id+"/status", `{"status":"lost"}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, post("/orders/nope/status", `{"status":"delivered"}`).StatusCode)
	assert.Equal(t, 1, pub.n)

	resp, err := http.Get(srv.URL + "/orders/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	var got orderResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, tracker.StatusInProgress, got.Status)
	assert.Equal(t, "u-1", got.UserID)
}
