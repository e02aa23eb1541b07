package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gestures/internal/gesture"
	"github.com/banshee-data/gestures/internal/gesture/storage/sqlite"
	"github.com/banshee-data/gestures/internal/testutil"
)

func newTestServer(t *testing.T, store *sqlite.Store) (*WebServer, *gesture.Engine) {
	t.Helper()
	engine, err := gesture.NewEngine(gesture.DefaultEngineConfig(), gesture.EngineOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Dispose() })
	ws := NewWebServer(WebServerConfig{Address: ":0", Engine: engine, Store: store})
	return ws, engine
}

func get(t *testing.T, ws *WebServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ws, _ := newTestServer(t, nil)
	rec := get(t, ws, "/healthz")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.RegisterGesture(gesture.GestureDefinition{ID: "wave"}))
	require.NoError(t, engine.Start())
	require.NoError(t, engine.FeedSamples(testutil.StillSamples(100, 0, 50)))

	rec := get(t, ws, "/api/status")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "listening", body["state"])
	assert.Equal(t, float64(1), body["classes"])
	assert.Equal(t, float64(0), body["classes_ready"])
	assert.Equal(t, float64(100), body["buffer_samples"])
	assert.Equal(t, "idle", body["recorder_phase"])
	assert.Equal(t, false, body["needs_recal"])
}

func TestBufferEndpoint(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.Start())
	require.NoError(t, engine.FeedSamples(testutil.StillSamples(200, 0, 50)))

	rec := get(t, ws, "/api/buffer?n=50")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body struct {
		Timestamps []int64   `json:"timestamps_ms"`
		Magnitudes []float64 `json:"magnitudes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Timestamps, 50)
	assert.Len(t, body.Magnitudes, 50)
	// most recent 50 of the 200 fed samples, in order
	assert.Equal(t, int64(150*20), body.Timestamps[0])
	assert.Equal(t, int64(199*20), body.Timestamps[49])
}

func TestBufferEndpointBadParam(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.Start())
	require.NoError(t, engine.FeedSamples(testutil.StillSamples(20, 0, 50)))

	// a nonsense n falls back to the default instead of failing
	rec := get(t, ws, "/api/buffer?n=zzz")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestLibraryEndpoint(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.RegisterGesture(gesture.GestureDefinition{ID: "wave", Name: "Wave"}))
	require.NoError(t, engine.RegisterGesture(gesture.GestureDefinition{ID: "chop", Name: "Chop"}))

	rec := get(t, ws, "/api/library")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var body []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Templates int    `json:"templates"`
		Ready     bool   `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "chop", body[0].ID)
	assert.Equal(t, "wave", body[1].ID)
	assert.False(t, body[0].Ready)
	assert.Zero(t, body[0].Templates)
}

func TestEventsEndpointWithoutStore(t *testing.T) {
	t.Parallel()

	ws, _ := newTestServer(t, nil)
	rec := get(t, ws, "/api/events")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "gestures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RecordEvent(gesture.RecognitionResult{
		GestureID: "tap",
		Timestamp: 1000,
		Accepted:  true,
	}))
	require.NoError(t, store.RecordEvent(gesture.RecognitionResult{
		GestureID: "shake",
		Timestamp: 2000,
		Accepted:  true,
	}))

	ws, _ := newTestServer(t, store)
	rec := get(t, ws, "/api/events?start_ms=0&end_ms=1500")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var events []gesture.RecognitionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "tap", events[0].GestureID)
}

func TestWaveformEndpoint(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.Start())
	require.NoError(t, engine.FeedSamples(testutil.ShakeSamples(200, 0, 50, 4, 3)))

	rec := get(t, ws, "/debug/waveform?n=100&axes=1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.True(t, strings.Contains(rec.Body.String(), "echarts"))
}

func TestWaveformEndpointEmptyBuffer(t *testing.T) {
	t.Parallel()

	ws, _ := newTestServer(t, nil)
	rec := get(t, ws, "/debug/waveform")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestWebSocketStreamsEvents(t *testing.T) {
	t.Parallel()

	ws, engine := newTestServer(t, nil)
	require.NoError(t, engine.Start())

	srv := httptest.NewServer(ws.setupRoutes())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// the handshake completes before the handler registers the client
	require.Eventually(t, func() bool {
		ws.mu.RLock()
		defer ws.mu.RUnlock()
		return len(ws.clients) == 1
	}, time.Second, 5*time.Millisecond)

	// broadcast goes straight to connected clients; subscriptions to the
	// engine happen in Start, which the route-level test does not run
	ws.broadcast("state", gesture.StateListening)

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, "state", frame.Type)
	assert.Equal(t, `"listening"`, string(frame.Data))
}
