package rendezvous

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ElijahCirioli/zing-video-chat/internal/metrics"
	"github.com/ElijahCirioli/zing-video-chat/internal/roomid"
	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *Server, *metrics.Metrics) {
	t.Helper()

	m := metrics.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log, m, NewRegistry(), opts)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("GET /roomId", srv.HandleRoomID)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, srv, m
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recvEnvelope(t *testing.T, conn *websocket.Conn) signal.Envelope {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return env
}

func pairUp(t *testing.T, ts *httptest.Server, srv *Server, room string) (host, guest *websocket.Conn) {
	t.Helper()

	host = dial(t, ts)
	send(t, host, `{"type":"create","room":"`+room+`"}`)
	waitFor(t, func() bool { return srv.Registry().InUse(room) })

	guest = dial(t, ts)
	send(t, guest, `{"type":"join","room":"`+room+`"}`)

	if env := recvEnvelope(t, host); env.Type != signal.EventReady {
		t.Fatalf("host got %q, want ready", env.Type)
	}
	if env := recvEnvelope(t, guest); env.Type != signal.EventReady {
		t.Fatalf("guest got %q, want ready", env.Type)
	}
	return host, guest
}

func TestServer_CreateJoinReady(t *testing.T) {
	ts, srv, m := newTestServer(t, Options{})
	pairUp(t, ts, srv, "roomAAAAAA")

	if got := m.Get(metrics.EventRoomsCreated); got != 1 {
		t.Fatalf("rooms_created=%d, want 1", got)
	}
	if got := m.Get(metrics.EventRoomsJoined); got != 1 {
		t.Fatalf("rooms_joined=%d, want 1", got)
	}
}

func TestServer_JoinUnknownRoomEmpty(t *testing.T) {
	ts, _, m := newTestServer(t, Options{})

	conn := dial(t, ts)
	send(t, conn, `{"type":"join","room":"nosuchroom"}`)
	if env := recvEnvelope(t, conn); env.Type != signal.EventEmpty {
		t.Fatalf("got %q, want empty", env.Type)
	}
	if got := m.Get(metrics.EventJoinEmpty); got != 1 {
		t.Fatalf("join_empty=%d, want 1", got)
	}
}

func TestServer_ThirdJoinerFull(t *testing.T) {
	ts, srv, m := newTestServer(t, Options{})
	pairUp(t, ts, srv, "roomBBBBBB")

	late := dial(t, ts)
	send(t, late, `{"type":"join","room":"roomBBBBBB"}`)
	if env := recvEnvelope(t, late); env.Type != signal.EventFull {
		t.Fatalf("got %q, want full", env.Type)
	}
	if got := m.Get(metrics.EventJoinFull); got != 1 {
		t.Fatalf("join_full=%d, want 1", got)
	}
}

func TestServer_RelayPreservesPayloadBytes(t *testing.T) {
	ts, srv, m := newTestServer(t, Options{})
	host, guest := pairUp(t, ts, srv, "roomCCCCCC")

	// The relay must not interpret the payload, and unknown fields must
	// survive untouched.
	payload := `{"type":"offer","sdp":{"type":"offer","sdp":"v=0"},"extra":{"nested":[1,2,3]}}`
	send(t, host, `{"type":"message","payload":`+payload+`}`)

	env := recvEnvelope(t, guest)
	if env.Type != signal.EventMessage {
		t.Fatalf("got %q, want message", env.Type)
	}
	if string(env.Payload) != payload {
		t.Fatalf("payload mutated:\n got %s\nwant %s", env.Payload, payload)
	}
	if got := m.Get(metrics.EventMessagesRelayed); got != 1 {
		t.Fatalf("messages_relayed=%d, want 1", got)
	}
}

func TestServer_MessageWithNoPeerIsDropped(t *testing.T) {
	ts, _, m := newTestServer(t, Options{})

	conn := dial(t, ts)
	send(t, conn, `{"type":"create","room":"roomDDDDDD"}`)
	send(t, conn, `{"type":"message","payload":{"type":"ping"}}`)
	waitFor(t, func() bool { return m.Get(metrics.EventRelayDropped) == 1 })

	// The connection stays usable; a second client can still join.
	guest := dial(t, ts)
	send(t, guest, `{"type":"join","room":"roomDDDDDD"}`)
	if env := recvEnvelope(t, conn); env.Type != signal.EventReady {
		t.Fatalf("got %q, want ready", env.Type)
	}
}

func TestServer_EndNotifiesPeerAndFreesID(t *testing.T) {
	ts, srv, m := newTestServer(t, Options{})
	host, guest := pairUp(t, ts, srv, "roomEEEEEE")

	send(t, host, `{"type":"end"}`)
	if env := recvEnvelope(t, guest); env.Type != signal.EventEnd {
		t.Fatalf("got %q, want end", env.Type)
	}

	waitFor(t, func() bool { return srv.Registry().Len() == 0 })
	if got := m.Get(metrics.EventRoomsEnded); got != 1 {
		t.Fatalf("rooms_ended=%d, want 1", got)
	}

	// The id is immediately reusable.
	again := dial(t, ts)
	send(t, again, `{"type":"create","room":"roomEEEEEE"}`)
	waitFor(t, func() bool { return srv.Registry().InUse("roomEEEEEE") })
	partner := dial(t, ts)
	send(t, partner, `{"type":"join","room":"roomEEEEEE"}`)
	if env := recvEnvelope(t, again); env.Type != signal.EventReady {
		t.Fatalf("got %q, want ready after id reuse", env.Type)
	}
}

func TestServer_SurvivorConnectionOutlivesRoom(t *testing.T) {
	ts, srv, _ := newTestServer(t, Options{})
	host, guest := pairUp(t, ts, srv, "roomJJJJJJ")

	host.Close()
	if env := recvEnvelope(t, guest); env.Type != signal.EventEnd {
		t.Fatalf("got %q, want end", env.Type)
	}
	waitFor(t, func() bool { return srv.Registry().Len() == 0 })

	// The survivor's connection stays open; it can start a new call without
	// reconnecting.
	send(t, guest, `{"type":"create","room":"roomKKKKKK"}`)
	waitFor(t, func() bool { return srv.Registry().InUse("roomKKKKKK") })
	partner := dial(t, ts)
	send(t, partner, `{"type":"join","room":"roomKKKKKK"}`)
	if env := recvEnvelope(t, guest); env.Type != signal.EventReady {
		t.Fatalf("got %q, want ready on reused connection", env.Type)
	}
}

func TestServer_DisconnectActsAsEnd(t *testing.T) {
	ts, srv, _ := newTestServer(t, Options{})
	host, guest := pairUp(t, ts, srv, "roomFFFFFF")

	host.Close()
	if env := recvEnvelope(t, guest); env.Type != signal.EventEnd {
		t.Fatalf("got %q, want end after abrupt disconnect", env.Type)
	}
	waitFor(t, func() bool { return srv.Registry().Len() == 0 })
}

func TestServer_RateLimitClosesConnection(t *testing.T) {
	// A frozen clock means the bucket never refills.
	ts, _, m := newTestServer(t, Options{
		MessagesPerSecond: 1,
		MessageBurst:      1,
		Clock:             &fixedClock{now: time.Unix(0, 0)},
	})

	conn := dial(t, ts)
	send(t, conn, `{"type":"create","room":"roomGGGGGG"}`)
	send(t, conn, `{"type":"message","payload":{"type":"ping"}}`)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if got := m.Get(metrics.EventRateLimited); got != 1 {
		t.Fatalf("rate_limited=%d, want 1", got)
	}
}

func TestServer_InvalidMessageClosesConnection(t *testing.T) {
	ts, _, _ := newTestServer(t, Options{})

	conn := dial(t, ts)
	send(t, conn, `not json`)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Fatalf("expected unsupported data close, got %v", err)
	}
}

func TestServer_CreateOnActiveIDGetsFull(t *testing.T) {
	ts, srv, m := newTestServer(t, Options{})

	first := dial(t, ts)
	send(t, first, `{"type":"create","room":"roomHHHHHH"}`)
	waitFor(t, func() bool { return srv.Registry().InUse("roomHHHHHH") })

	second := dial(t, ts)
	send(t, second, `{"type":"create","room":"roomHHHHHH"}`)
	if env := recvEnvelope(t, second); env.Type != signal.EventFull {
		t.Fatalf("got %q, want full", env.Type)
	}
	if got := m.Get(metrics.EventCreateFull); got != 1 {
		t.Fatalf("create_full=%d, want 1", got)
	}

	// The refused caller keeps its connection and can claim a free id.
	send(t, second, `{"type":"create","room":"roomIIIIII"}`)
	waitFor(t, func() bool { return srv.Registry().InUse("roomIIIIII") })
}

func TestServer_RoomIDRoute(t *testing.T) {
	ts, _, m := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/roomId")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !roomid.Valid(string(body)) {
		t.Fatalf("body %q is not a valid room id", body)
	}
	if got := m.Get(metrics.EventRoomIDRequests); got != 1 {
		t.Fatalf("room_id_requests=%d, want 1", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestServer_OriginPolicyOnUpgrade(t *testing.T) {
	ts, _, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://chat.example.com"}})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"https://evil.example"},
	})
	if err == nil {
		t.Fatal("upgrade succeeded from a foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"https://chat.example.com"},
	})
	if err != nil {
		t.Fatalf("allowlisted origin rejected: %v", err)
	}
	conn.Close()

	// Clients without an Origin header (the terminal endpoint) always pass.
	conn = dial(t, ts)
	conn.Close()
}
