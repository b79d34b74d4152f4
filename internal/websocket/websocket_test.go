package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
)

type received struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

func newTestHub(t *testing.T) (*Hub, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub, logs
}

// dial connects a websocket client to hub through a test server
func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, "req-1", nil)
		if !hub.Register(c) {
			_ = conn.Close()
			return
		}
		go c.WritePump()
		go c.ReadPump()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m received
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestProgressPublishesStageEvents(t *testing.T) {
	hub, logs := newTestHub(t)
	conn := dial(t, hub)

	hello := read(t, conn)
	require.Equal(t, TypeConnection, hello.Type)
	assert.Equal(t, "req-1", hello.TraceID)
	assert.Equal(t, 1, hub.ClientCount())
	assert.True(t, logs.ContainsMessage("client registered"))

	p := NewProgress(hub)
	ctx := infrastructure.WithTraceID(context.Background(), "run-7")
	p.RecordStage(ctx, "allocation", "M", 1500*time.Millisecond, 24, nil)
	p.RecordQuality(ctx, "usage_outlier", 2)
	p.RecordStage(ctx, "usage", "D", time.Millisecond, 0, errors.New("store offline"))

	m := read(t, conn)
	require.Equal(t, TypeStage, m.Type)
	assert.Equal(t, "run-7", m.TraceID)
	var stage StageEvent
	require.NoError(t, json.Unmarshal(m.Data, &stage))
	assert.Equal(t, StageEvent{Stage: "allocation", Frequency: "M", Rows: 24, DurationMS: 1500}, stage)

	m = read(t, conn)
	require.Equal(t, TypeQuality, m.Type)
	var quality QualityEvent
	require.NoError(t, json.Unmarshal(m.Data, &quality))
	assert.Equal(t, QualityEvent{Event: "usage_outlier", Count: 2}, quality)

	m = read(t, conn)
	require.NoError(t, json.Unmarshal(m.Data, &stage))
	assert.Equal(t, "usage", stage.Stage)
	assert.Equal(t, "store offline", stage.Error)

	assert.Eventually(t, func() bool { return hub.Stats().MessagesSent >= 3 }, time.Second, 10*time.Millisecond)
}

func TestHubFansOutToEveryClient(t *testing.T) {
	hub, _ := newTestHub(t)
	a, b := dial(t, hub), dial(t, hub)
	read(t, a)
	read(t, b)
	require.Equal(t, 2, hub.ClientCount())

	hub.Publish(context.Background(), TypeStage, StageEvent{Stage: "catalog"})
	for _, conn := range []*websocket.Conn{a, b} {
		m := read(t, conn)
		assert.Equal(t, TypeStage, m.Type)
		assert.Contains(t, string(m.Data), `"stage":"catalog"`)
	}

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond,
		"a closed client is unregistered")
}

func TestHubStopClosesClients(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dial(t, hub)
	read(t, conn)

	hub.Stop()
	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr)
	assert.Zero(t, hub.ClientCount())
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(logger)

	for i := 0; i < broadcastBuffer+3; i++ {
		hub.Publish(context.Background(), TypeQuality, QualityEvent{Event: "missing_donor", Count: i})
	}
	assert.Equal(t, int64(3), hub.Stats().Dropped, "publishing never blocks the caller")
}
