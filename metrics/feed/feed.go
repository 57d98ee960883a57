// Package feed streams metric records to external dashboards over WebSocket.
// The feed is write-only from the core's point of view: client frames are
// read and discarded.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/metrics"
)

const (
	writeWait    = 2 * time.Second
	sendQueue    = 256
	shutdownWait = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// Hub fans records out to every connected WebSocket subscriber and serves
// the aggregated counters as JSON.
type Hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
	counters *metrics.Counters
	log      *gridlog.Logger
}

// NewHub creates a hub. counters may be nil.
func NewHub(log *gridlog.Logger, counters *metrics.Counters) *Hub {
	return &Hub{
		subs:     make(map[*subscriber]struct{}),
		counters: counters,
		log:      log,
	}
}

// Observe implements metrics.Observer. Slow subscribers miss records rather
// than stall the caller.
func (h *Hub) Observe(r metrics.Record) {
	data, err := json.Marshal(r)
	if err != nil {
		h.log.Logf("Feed", gridlog.ERROR, "marshal record: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
		}
	}
}

// Subscribers returns the number of connected WebSocket clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Handler routes /metrics/ws and /metrics/counters.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics/ws", h.serveWS)
	mux.HandleFunc("/metrics/counters", h.serveCounters)
	return mux
}

func (h *Hub) serveCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var snap metrics.CountersSnapshot
	if h.counters != nil {
		snap = h.counters.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Logf("Feed", gridlog.WARNING, "write counters to %s failed: %v", r.RemoteAddr, err)
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Logf("Feed", gridlog.WARNING, "ws upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendQueue)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Logf("Feed", gridlog.INFO, "subscriber %s connected (%d total)", conn.RemoteAddr(), h.Subscribers())

	go h.writeLoop(sub)
	h.readLoop(sub)
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.remove(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for data := range sub.send {
		err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = sub.conn.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			h.log.Logf("Feed", gridlog.WARNING, "write to %s failed: %v", sub.conn.RemoteAddr(), err)
			h.remove(sub)
			return
		}
	}
	err := sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		h.log.Logf("Feed", gridlog.DEBUG, "close frame to %s: %v", sub.conn.RemoteAddr(), err)
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	left := len(h.subs)
	h.mu.Unlock()
	if ok {
		sub.close()
		h.log.Logf("Feed", gridlog.INFO, "subscriber %s disconnected (%d left)", sub.conn.RemoteAddr(), left)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Serve runs an HTTP server for the hub on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	h.log.Logf("Feed", gridlog.INFO, "metrics feed on http://%s/metrics/ws", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
