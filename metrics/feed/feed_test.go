package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jdcabreradev/gridclash/metrics"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubStreamsRecords(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/metrics/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Subscribers() == 1 })

	hub.Observe(metrics.Record{Kind: metrics.KindSnapshotSent, SnapshotID: 41, Count: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}

	var got struct {
		Kind       string `json:"kind"`
		SnapshotID uint32 `json:"snapshotId"`
		Count      int    `json:"count"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v (%s)", err, data)
	}
	if got.Kind != "snapshot-sent" || got.SnapshotID != 41 || got.Count != 3 {
		t.Errorf("Unexpected record: %s", data)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers() == 0 })
}

func TestHubServesCounters(t *testing.T) {
	counters := &metrics.Counters{}
	counters.Observe(metrics.Record{Kind: metrics.KindPlayerJoined})
	counters.Observe(metrics.Record{Kind: metrics.KindPlayerJoined})

	hub := NewHub(nil, counters)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics/counters")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	var snap metrics.CountersSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if snap.Joins != 2 {
		t.Errorf("Joins = %d, want 2", snap.Joins)
	}

	post, err := http.Post(srv.URL+"/metrics/counters", "application/json", nil)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", post.StatusCode)
	}
}

func TestHubCloseDisconnects(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/metrics/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.Subscribers() == 1 })

	hub.Close()
	if hub.Subscribers() != 0 {
		t.Error("subscribers remain after Close")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
	hub.Observe(metrics.Record{Kind: metrics.KindTick})
}
