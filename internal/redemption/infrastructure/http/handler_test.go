package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
)

type checkoutFunc func(ctx context.Context) (string, error)

func (f checkoutFunc) PlaceOrder(ctx context.Context) (string, error) { return f(ctx) }

func newServer(t *testing.T, checkout Checkouter) *httptest.Server {
	t.Helper()
	engine := application.NewEngine(slog.New(slog.DiscardHandler), domain.EarnPolicy{PointsPerPaidUnit: 1})
	srv := httptest.NewServer(NewHandler(slog.New(slog.DiscardHandler), engine, checkout).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

const threeItems = `{"points_balance":2,"items":[
	{"id":"A","product_id":"p-a","name":"Wrap","unit_price_cents":500,"quantity":1},
	{"id":"B","product_id":"p-b","name":"Soup","unit_price_cents":300,"quantity":1},
	{"id":"C","product_id":"p-c","name":"Bowl","unit_price_cents":800,"quantity":1}]}`

func TestHandler_CartFlow(t *testing.T) {
	srv := newServer(t, checkoutFunc(func(context.Context) (string, error) { return "order-1", nil }))

	code, _ := call(t, http.MethodPut, srv.URL+"/cart", threeItems)
	require.Equal(t, http.StatusOK, code)

	code, body := call(t, http.MethodPost, srv.URL+"/cart/items/B/toggle-free", "")
	require.Equal(t, http.StatusOK, code)
	var v cartView
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "13.00", v.Total)
	assert.Equal(t, int64(1300), v.TotalCents)
	assert.Equal(t, 1, v.PointsBalance)
	assert.Equal(t, 2, v.EarnedPoints)
	require.Len(t, v.Items, 3)
	assert.Equal(t, "B", v.Items[0].ID)
	assert.Equal(t, "3.00", v.Items[0].UnitPrice)
	assert.Equal(t, "0.00", v.Items[0].LineTotal)

	code, body = call(t, http.MethodPost, srv.URL+"/cart/items/C/toggle-free", "")
	assert.Equal(t, http.StatusConflict, code)
	var e errorResp
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, string(domain.ReasonInvalidRedemptionOrder), e.Reason)

	code, body = call(t, http.MethodPost, srv.URL+"/cart/items/A/quantity", `{"delta":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, string(domain.ReasonQuantityBelowMinimum), e.Reason)

	code, _ = call(t, http.MethodDelete, srv.URL+"/cart/items/Z", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = call(t, http.MethodPost, srv.URL+"/cart/checkout", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Contains(t, string(body), "order-1")
}

func TestHandler_CheckoutFailure(t *testing.T) {
	srv := newServer(t, checkoutFunc(func(context.Context) (string, error) { return "", assert.AnError }))

	code, body := call(t, http.MethodPost, srv.URL+"/cart/checkout", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, string(body), "submission_failed")

	srv = newServer(t, checkoutFunc(func(context.Context) (string, error) {
		_, _, err := domain.Cart{}.Checkout(domain.EarnPolicy{})
		return "", err
	}))
	code, body = call(t, http.MethodPost, srv.URL+"/cart/checkout", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(body), string(domain.ReasonEmptyCart))
}

func TestHandler_BadBodies(t *testing.T) {
	srv := newServer(t, nil)
	code, _ := call(t, http.MethodPut, srv.URL+"/cart", "{")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := call(t, http.MethodPut, srv.URL+"/cart", `{"points_balance":1,"items":[{"id":"A","unit_price_cents":100,"quantity":0}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(body), string(domain.ReasonInvalidItem))
}
