package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mewayz-notifications/internal/config"
	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/notification"
	"mewayz-notifications/internal/providers"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
	"mewayz-notifications/pkg/email"
)

type memSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *memSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	registry *realtime.Registry
	mail     *memSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()
	st := store.NewMemoryStore()
	registry := realtime.NewRegistry(logger, 2)
	mail := &memSender{}

	d := providers.NewDispatcher(logger, time.Second)
	d.Register(models.ChannelRealtime, providers.NewRealtime(registry, nil, logger))
	d.Register(models.ChannelInApp, providers.NewInApp(st))
	d.Register(models.ChannelEmail, providers.NewEmail(st, mail, logger))

	svc := notification.New(st, d, registry, logger, notification.Options{QueueSize: 10})

	var cfg config.Config
	cfg.API.BasePath = "/api/v1"
	cfg.WebSocket.PingInterval = time.Minute
	cfg.WebSocket.ReadLimit = 4096

	r := NewRouter(Deps{Service: svc, Registry: registry, Store: st}, logger, cfg)
	return &testServer{router: r, store: st, registry: registry, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestCreateNotification(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/notifications", gin.H{
		"user_id": "u1", "title": "Welcome", "message": "Hello", "type": "success",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[notification.SendResult](t, w)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.NotificationID)
	assert.Len(t, res.DeliveryResults, 2)
	assert.True(t, res.DeliveryResults[models.ChannelInApp].Success)
	_, stored := s.store.History(res.NotificationID)
	assert.True(t, stored)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestCreateNotification_Scheduled(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/notifications", gin.H{
		"user_id": "u1", "title": "Later", "message": "Soon",
		"scheduled_for": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, decode[notification.SendResult](t, w).Queued)
}

func TestCreateNotification_Invalid(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body gin.H
	}{
		{"missing title", gin.H{"user_id": "u1", "message": "x"}},
		{"missing user", gin.H{"title": "t", "message": "x"}},
		{"bad type", gin.H{"user_id": "u1", "title": "t", "message": "x", "type": "loud"}},
		{"bad channel", gin.H{"user_id": "u1", "title": "t", "message": "x", "channels": []string{"fax"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/notifications", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSendBulk(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/notifications/bulk", gin.H{
		"user_ids": []string{"u1", "u2", "u1"}, "title": "Maintenance", "message": "Tonight",
		"channels": []string{"in_app"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[notification.BulkResult](t, w)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 2, out.Sent)
}

func TestHistoryAndFlags(t *testing.T) {
	s := newTestServer(t)
	var ids []string
	for _, typ := range []string{"info", "warning", "warning"} {
		w := s.do(t, http.MethodPost, "/api/v1/notifications", gin.H{
			"user_id": "u1", "title": "t", "message": "m", "type": typ, "channels": []string{"in_app"},
		})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[notification.SendResult](t, w).NotificationID)
	}

	w := s.do(t, http.MethodGet, "/api/v1/notifications/user/u1?type=warning&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[notification.HistoryPage](t, w)
	assert.Len(t, page.Notifications, 1)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, int64(3), page.Unread)

	w = s.do(t, http.MethodGet, "/api/v1/notifications/user/u1?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/notifications/user/u1?channel=fax", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+ids[0]+"/read", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+ids[1]+"/click", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+ids[1]+"/click", gin.H{"user_id": "someone-else"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+ids[1]+"/read", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/notifications/user/u1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[notification.Stats](t, w)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Read)
	assert.Equal(t, int64(1), stats.Clicked)
	assert.Equal(t, int64(2), stats.ByType[models.TypeWarning])

	w = s.do(t, http.MethodPost, "/api/v1/notifications/user/u1/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["updated"])
}

func TestRetryNotification(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/notifications", gin.H{
		"user_id": "u1", "title": "Invoice", "message": "Due", "channels": []string{"email"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[notification.SendResult](t, w)
	require.False(t, res.DeliveryResults[models.ChannelEmail].Success)

	w = s.do(t, http.MethodPost, "/api/v1/contacts", gin.H{"user_id": "u1", "channel": "email", "address": "u1@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+res.NotificationID+"/retry", gin.H{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[notification.SendResult](t, w).DeliveryResults[models.ChannelEmail].Success)
	require.Len(t, s.mail.sent, 1)
	assert.Equal(t, "u1@example.com", s.mail.sent[0].To)

	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+res.NotificationID+"/retry", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/notifications/missing/retry", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterContact_Validation(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"email ok", gin.H{"user_id": "u1", "channel": "email", "address": "a@b.io"}, http.StatusCreated},
		{"email bad", gin.H{"user_id": "u1", "channel": "email", "address": "nope"}, http.StatusBadRequest},
		{"sms needs plus", gin.H{"user_id": "u1", "channel": "sms", "address": "5551234"}, http.StatusBadRequest},
		{"sms ok", gin.H{"user_id": "u1", "channel": "sms", "address": "+15551234"}, http.StatusCreated},
		{"realtime has no address", gin.H{"user_id": "u1", "channel": "realtime", "address": "x"}, http.StatusBadRequest},
		{"unknown channel", gin.H{"user_id": "u1", "channel": "fax", "address": "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/contacts", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	addr, err := s.store.GetContactAddress(context.Background(), "u1", models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "+15551234", addr)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_DeliversAndAnswersPing(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dial(t, srv, "u1")
	ack := readJSON(t, conn)
	assert.Equal(t, "connection_established", ack["type"])
	assert.Equal(t, "u1", ack["user_id"])

	w := s.do(t, http.MethodGet, "/api/v1/connections/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[notification.ConnectionStatus](t, w)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.ActiveConnections)

	w = s.do(t, http.MethodPost, "/api/v1/notifications", gin.H{
		"user_id": "u1", "title": "Live", "message": "Now", "priority": 9, "channels": []string{"realtime"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[notification.SendResult](t, w)
	assert.Equal(t, 1, res.DeliveryResults[models.ChannelRealtime].Delivered)

	msg := readJSON(t, conn)
	assert.Equal(t, "notification", msg["type"])
	assert.Equal(t, res.NotificationID, msg["id"])
	assert.Equal(t, "Live", msg["title"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readJSON(t, conn)["type"])
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", readJSON(t, conn)["type"])
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	for range 2 {
		readJSON(t, dial(t, srv, "u1"))
	}

	extra := dial(t, srv, "u1")
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := extra.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), err.Error())
	assert.Equal(t, 2, s.registry.CountForUser("u1"))
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dial(t, srv, "u1")
	readJSON(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool { return s.registry.CountForUser("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
