// Package monitor provides the HTTP diagnostics surface for the gesture
// engine: status and buffer JSON endpoints, an echarts waveform view of the
// ring buffer, and a websocket stream of live recognition events.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/gestures/internal/gesture"
	"github.com/banshee-data/gestures/internal/gesture/storage/sqlite"
	"github.com/banshee-data/gestures/internal/monitoring"
	"github.com/banshee-data/gestures/internal/version"
)

// WebServer handles the HTTP interface for monitoring the gesture engine.
type WebServer struct {
	address string
	engine  *gesture.Engine
	store   *sqlite.Store // optional; nil disables the events endpoint
	server  *http.Server

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	unsubscribe []func()
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Engine  *gesture.Engine
	Store   *sqlite.Store
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebServer creates a web server bound to an engine.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		engine:  config.Engine,
		store:   config.Store,
		clients: make(map[*wsClient]struct{}),
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

func (ws *WebServer) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/buffer", ws.handleBuffer)
	mux.HandleFunc("/api/library", ws.handleLibrary)
	mux.HandleFunc("/api/events", ws.handleEvents)
	mux.HandleFunc("/debug/waveform", ws.handleWaveform)
	mux.HandleFunc("/ws/events", ws.handleWebSocket)
	return mux
}

// Start begins serving and bridges engine events onto connected websocket
// clients. It blocks until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.unsubscribe = append(ws.unsubscribe,
		ws.engine.OnResult(func(r gesture.RecognitionResult) {
			ws.broadcast("result", r)
		}),
		ws.engine.OnActivityChanged(func(a gesture.ActivityContext) {
			ws.broadcast("activity", a)
		}),
		ws.engine.OnStateChanged(func(s gesture.EngineState) {
			ws.broadcast("state", s)
		}),
		ws.engine.OnArmedStateChanged(func(a gesture.ArmedState) {
			ws.broadcast("armed", a)
		}),
		ws.engine.OnSequence(func(ev gesture.SequenceEvent) {
			ws.broadcast("sequence", ev)
		}),
	)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("monitor: listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	for _, cancel := range ws.unsubscribe {
		cancel()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ws.server.Shutdown(shutdownCtx)
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("monitor: write response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok", "version": version.String()})
}

// handleStatus reports engine state, library readiness and guard posture.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	classes := ws.engine.Library().Classes()
	ready := 0
	for _, c := range classes {
		if c.IsReady() {
			ready++
		}
	}
	ws.writeJSON(w, map[string]interface{}{
		"state":          ws.engine.State(),
		"classes":        len(classes),
		"classes_ready":  ready,
		"buffer_samples": ws.engine.Buffer().Len(),
		"sma_baseline":   ws.engine.Segmenter().Baseline(),
		"armed":          ws.engine.Guard().Armed(),
		"cooldown_ms":    ws.engine.Guard().CooldownMs(),
		"recorder_phase": ws.engine.Recorder().Phase(),
		"needs_recal":    ws.engine.Guard().NeedsRecalibration(),
	})
}

// handleBuffer returns the most recent magnitude series from the ring
// buffer. Query param n caps the sample count (default 500).
func (ws *WebServer) handleBuffer(w http.ResponseWriter, r *http.Request) {
	n := 500
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 10000 {
			n = v
		}
	}
	samples := ws.engine.Buffer().Recent(n)
	mags := ws.engine.Buffer().MagnitudeSeries(n)
	ts := make([]int64, len(samples))
	for i, s := range samples {
		ts[i] = s.Timestamp
	}
	ws.writeJSON(w, map[string]interface{}{
		"timestamps_ms": ts,
		"magnitudes":    mags,
	})
}

func (ws *WebServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	type classInfo struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Templates int    `json:"templates"`
		Ready     bool   `json:"ready"`
	}
	classes := ws.engine.Library().Classes()
	out := make([]classInfo, 0, len(classes))
	for _, c := range classes {
		out = append(out, classInfo{
			ID:        c.Definition.ID,
			Name:      c.Definition.Name,
			Templates: len(c.Templates),
			Ready:     c.IsReady(),
		})
	}
	ws.writeJSON(w, out)
}

// handleEvents serves the persisted recognition event log.
func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no event store configured")
		return
	}
	q := r.URL.Query()
	start, _ := strconv.ParseInt(q.Get("start_ms"), 10, 64)
	end, err := strconv.ParseInt(q.Get("end_ms"), 10, 64)
	if err != nil || end == 0 {
		end = time.Now().UnixMilli()
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := ws.store.EventsInRange(start, end, limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, events)
}

// handleWebSocket upgrades the connection and streams engine events as
// {"type": ..., "data": ...} JSON frames.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("monitor: websocket upgrade: %v", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	go ws.writePump(client)
	// Read pump only detects disconnects; inbound frames are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.removeClient(client)
				return
			}
		}
	}()
}

func (ws *WebServer) writePump(c *wsClient) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			ws.removeClient(c)
			return
		}
	}
	c.conn.Close()
}

func (ws *WebServer) removeClient(c *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.clients[c]; ok {
		delete(ws.clients, c)
		close(c.send)
	}
}

// broadcast fans one event out to every connected client, dropping clients
// whose send buffer is full.
func (ws *WebServer) broadcast(eventType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": eventType, "data": data})
	if err != nil {
		return
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for c := range ws.clients {
		select {
		case c.send <- payload:
		default:
			delete(ws.clients, c)
			close(c.send)
		}
	}
}
