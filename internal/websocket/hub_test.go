package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastProgress: true})
	conn := dial(t, srv, nil)
	waitForClients(t, hub, 1)

	hub.BroadcastEvent(Event{Type: EventTypeBatchProgress, Data: BatchProgressEvent{RunID: "r1", Processed: 3, Total: 10}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type EventType          `json:"type"`
		Data BatchProgressEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventTypeBatchProgress, got.Type)
	assert.Equal(t, 3, got.Data.Processed)
	assert.Equal(t, 10, got.Data.Total)
}

func TestDisabledEventTypesAreNotQueued(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastProgress: true}, zap.NewNop())

	hub.BroadcastEvent(Event{Type: EventTypeAudit})
	hub.BroadcastEvent(Event{Type: EventTypeSystemStatus})
	assert.Len(t, hub.broadcast, 0)

	hub.BroadcastEvent(Event{Type: EventTypeStreamProgress})
	assert.Len(t, hub.broadcast, 1)
}

func TestSubscriptionFiltersEvents(t *testing.T) {
	client := &Client{Subscription: &SubscriptionRequest{Events: []EventType{EventTypeAudit}}}

	assert.True(t, shouldSendToClient(client, Event{Type: EventTypeAudit}))
	assert.False(t, shouldSendToClient(client, Event{Type: EventTypeBatchProgress}))
	assert.True(t, shouldSendToClient(&Client{}, Event{Type: EventTypeBatchProgress}))
}

func TestBasicAuth(t *testing.T) {
	hub := NewHub(&HubConfig{Username: "ops", Password: "s3cret"}, zap.NewNop())

	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.SetBasicAuth("ops", "wrong")
	rec = httptest.NewRecorder()
	hub.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.SetBasicAuth("ops", "s3cret")
	assert.True(t, hub.authorized(req))
}

func TestAuthenticatedClientConnects(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{Username: "ops", Password: "s3cret"})

	header := http.Header{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("ops", "s3cret")
	header.Set("Authorization", req.Header.Get("Authorization"))

	dial(t, srv, header)
	waitForClients(t, hub, 1)
	assert.Equal(t, int64(1), hub.GetStats().TotalConnections)
}
