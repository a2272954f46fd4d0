package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

type fakeTracker struct {
	view       application.View
	watchErr   error
	retryErr   error
	resumeErr  error
	suspended  int
	loggedOut  int
}

func (f *fakeTracker) View() application.View                { return f.view }
func (f *fakeTracker) Watch(context.Context, string) error   { return f.watchErr }
func (f *fakeTracker) RetrySettlement(context.Context) error { return f.retryErr }
func (f *fakeTracker) Resume(context.Context) error          { return f.resumeErr }
func (f *fakeTracker) Logout(context.Context)                { f.loggedOut++ }

func (f *fakeTracker) PersistOnSuspend(context.Context) error {
	f.suspended++
	return nil
}

type fakeSession struct{ out int }

func (s *fakeSession) SignOut() { s.out++ }

func serve(t *testing.T, tr *fakeTracker, sess SignOut, hub *UIHub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(slog.New(slog.DiscardHandler), tr, sess, hub).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestHandler_OrderView(t *testing.T) {
	tr := &fakeTracker{view: application.View{OrderID: "order-1", Status: domain.StatusInProgress, PendingPoints: 3}}
	srv := serve(t, tr, &fakeSession{}, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/order")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v application.View
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, tr.view.OrderID, v.OrderID)
	assert.Equal(t, domain.StatusInProgress, v.Status)
	assert.Equal(t, 3, v.PendingPoints)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tr := &fakeTracker{
		watchErr: domain.ErrNoActiveOrder,
		retryErr: fmt.Errorf("credit points for order o-1: %w", domain.ErrNetworkFailure),
	}
	srv := serve(t, tr, &fakeSession{}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/order/watch")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorResp
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "no_active_order", e.Reason)

	resp, _ = do(t, http.MethodPost, srv.URL+"/order/settlement/retry")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	tr.retryErr = domain.ErrNothingToSettle
	resp, _ = do(t, http.MethodPost, srv.URL+"/order/settlement/retry")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_Lifecycle(t *testing.T) {
	tr := &fakeTracker{resumeErr: fmt.Errorf("%w: order o-1", domain.ErrStaleSnapshot)}
	sess := &fakeSession{}
	srv := serve(t, tr, sess, nil)

	resp, _ := do(t, http.MethodPost, srv.URL+"/lifecycle/suspend")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, tr.suspended)

	resp, _ = do(t, http.MethodPost, srv.URL+"/lifecycle/resume")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tr.resumeErr = assert.AnError
	resp, _ = do(t, http.MethodPost, srv.URL+"/lifecycle/resume")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/logout")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, tr.loggedOut)
	assert.Equal(t, 1, sess.out)
}

func TestUIHub_Broadcasts(t *testing.T) {
	hub := NewUIHub(slog.New(slog.DiscardHandler))
	srv := serve(t, &fakeTracker{}, nil, hub)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ui/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.StatusChanged("order-1", domain.StatusDelivered)
	hub.ReadyForFeedback("order-1")

	var n Notice
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, Notice{Kind: NoticeStatusChanged, OrderID: "order-1", Status: domain.StatusDelivered}, n)
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, NoticeReadyForFeedback, n.Kind)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
