package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

func TestParseChange_CurrentShape(t *testing.T) {
	frame := []byte(`{"topic":"realtime:public:investments","event":"postgres_changes","payload":{"data":{
		"type":"UPDATE","schema":"public","table":"investments",
		"record":{"id":7,"status":"success"},"old_record":{"id":7}},"ids":[1]},"ref":null}`)

	ch, ok := parseChange(frame)
	if !ok {
		t.Fatal("expected a change")
	}
	if ch.Type != Update || ch.Table != "investments" || ch.Schema != "public" {
		t.Fatalf("unexpected change %+v", ch)
	}
	var row struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := ch.Decode(&row); err != nil || row.ID != 7 || row.Status != "success" {
		t.Fatalf("decode: %v %+v", err, row)
	}
}

func TestParseChange_LegacyShapeAndDelete(t *testing.T) {
	frame := []byte(`{"topic":"realtime:public:withdrawals","event":"DELETE","payload":{
		"type":"DELETE","schema":"public","table":"withdrawals","old_record":{"id":42}}}`)

	ch, ok := parseChange(frame)
	if !ok || ch.Type != Delete {
		t.Fatalf("expected a delete, got %+v ok=%v", ch, ok)
	}
	if ch.OldID().Int() != 42 {
		t.Fatalf("expected old id 42, got %s", ch.OldID().Raw)
	}
	var row struct{ ID int64 }
	if err := ch.Decode(&row); err != nil || row.ID != 42 {
		t.Fatalf("delete should decode the old row: %v %+v", err, row)
	}
}

func TestParseChange_IgnoresOtherFrames(t *testing.T) {
	for _, f := range []string{
		`{"event":"phx_reply","payload":{"status":"ok","response":{}}}`,
		`{"event":"presence_state","payload":{}}`,
		`not json`,
	} {
		if _, ok := parseChange([]byte(f)); ok {
			t.Fatalf("frame should be ignored: %s", f)
		}
	}
}

func TestNewClient_URL(t *testing.T) {
	c := NewClient("https://abc.supabase.co/", "anon key", Options{})
	if c.url != "wss://abc.supabase.co/realtime/v1/websocket?apikey=anon+key&vsn=1.0.0" {
		t.Fatalf("unexpected url %s", c.url)
	}
	if c.opts.HeartbeatInterval != 30*time.Second {
		t.Fatalf("default heartbeat should be 30s, got %s", c.opts.HeartbeatInterval)
	}
}

// phoenixServer accepts one websocket, acknowledges joins, and pushes a
// change for every joined table.
func phoenixServer(t *testing.T, joined chan<- string, heartbeats chan<- struct{}) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/realtime/v1/websocket") || r.URL.Query().Get("apikey") != "anon" {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			topic := gjson.GetBytes(msg, "topic").String()
			switch gjson.GetBytes(msg, "event").String() {
			case "phx_join":
				table := gjson.GetBytes(msg, "payload.config.postgres_changes.0.table").String()
				joined <- topic
				conn.WriteJSON(map[string]any{
					"topic": topic, "event": "phx_reply", "ref": gjson.GetBytes(msg, "ref").String(),
					"payload": map[string]any{"status": "ok", "response": map[string]any{}},
				})
				conn.WriteJSON(map[string]any{
					"topic": topic, "event": "postgres_changes",
					"payload": map[string]any{"data": map[string]any{
						"type": "INSERT", "schema": "public", "table": table,
						"record": map[string]any{"id": 1},
					}},
				})
			case "heartbeat":
				select {
				case heartbeats <- struct{}{}:
				default:
				}
			}
		}
	}))
}

func TestClient_JoinsAndDispatches(t *testing.T) {
	joined := make(chan string, 4)
	heartbeats := make(chan struct{}, 1)
	srv := phoenixServer(t, joined, heartbeats)
	defer srv.Close()

	c := NewClient(srv.URL, "anon", Options{HeartbeatInterval: 20 * time.Millisecond})
	got := make(chan Change, 4)
	c.On("investments", func(ch Change) { got <- ch })

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	select {
	case topic := <-joined:
		if topic != "realtime:public:investments" {
			t.Fatalf("unexpected topic %s", topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("never joined")
	}
	select {
	case <-c.Connected():
	case <-time.After(5 * time.Second):
		t.Fatal("Connected never closed")
	}
	select {
	case ch := <-got:
		if ch.Type != Insert || ch.Table != "investments" {
			t.Fatalf("unexpected change %+v", ch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change never dispatched")
	}
	select {
	case <-heartbeats:
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat sent")
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_RunStopsWhileReconnecting(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "anon", Options{ReconnectDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_OnReconnectAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if gjson.GetBytes(msg, "event").String() != "phx_join" {
				continue
			}
			conn.WriteJSON(map[string]any{
				"topic": gjson.GetBytes(msg, "topic").String(), "event": "phx_reply",
				"ref":     gjson.GetBytes(msg, "ref").String(),
				"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			})
			if n == 1 {
				// drop the first connection right after the join
				return
			}
		}
	}))
	defer srv.Close()

	reconnected := make(chan struct{}, 4)
	c := NewClient(srv.URL, "anon", Options{
		ReconnectDelay: 10 * time.Millisecond,
		OnReconnect:    func() { reconnected <- struct{}{} },
	})
	c.On("investments", func(Change) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnReconnect never ran")
	}
	if n := conns.Load(); n < 2 {
		t.Fatalf("expected a second connection, got %d", n)
	}
	select {
	case <-reconnected:
		t.Fatal("OnReconnect ran more than once for one reconnect")
	case <-time.After(50 * time.Millisecond):
	}
}
