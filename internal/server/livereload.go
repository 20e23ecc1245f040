package server

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// Live-reload event types.
const (
	EventReload       = "reload"
	EventRefreshAsset = "refresh_asset"
)

// ReloadEvent is pushed to connected browsers over SSE.
type ReloadEvent struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// Hub manages SSE clients for live-reload broadcasts. Slow clients are
// dropped rather than blocking a broadcast.
type Hub struct {
	rec metrics.Recorder

	mu      sync.RWMutex
	nextID  int
	clients map[int]*hubClient
	closed  bool
}

type hubClient struct {
	id   int
	ch   chan ReloadEvent
	done chan struct{}
}

// NewHub creates a hub reporting client counts to rec.
func NewHub(rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Hub{rec: rec, clients: map[int]*hubClient{}}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &hubClient{ch: make(chan ReloadEvent, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	h.rec.SetLiveReloadClients(len(h.clients))
	h.mu.Unlock()
	defer h.removeClient(client.id)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		return
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				return
			}
			bw.Flush()
			flusher.Flush()
		case ev := <-client.ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := bw.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				return
			}
			bw.Flush()
			flusher.Flush()
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.rec.SetLiveReloadClients(len(h.clients))
	}
}

// Broadcast pushes an event to every connected client. Clients whose
// buffers are full are dropped.
func (h *Hub) Broadcast(ev ReloadEvent) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.rec.IncLiveReloadBroadcasts()
	slog.Debug("livereload broadcast",
		logfields.Kind(ev.Type),
		logfields.Path(ev.Path),
		slog.Int("clients", len(snapshot)),
		slog.Int("dropped", dropped))
}

// Shutdown disconnects all clients and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*hubClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}
