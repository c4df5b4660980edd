package engine

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ElijahCirioli/zing-video-chat/internal/metrics"
	"github.com/ElijahCirioli/zing-video-chat/internal/rendezvous"
	"github.com/ElijahCirioli/zing-video-chat/internal/roomid"
	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

func startRendezvous(t *testing.T) (*httptest.Server, *rendezvous.Server) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := rendezvous.NewServer(log, metrics.New(), rendezvous.NewRegistry(), rendezvous.Options{})

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("GET /roomId", srv.HandleRoomID)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, srv
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(ts), slog.Default())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func awaitEvent(t *testing.T, c *Client, want signal.EventType) signal.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Incoming():
		if !ok {
			t.Fatalf("connection closed while waiting for %s: %v", want, c.Err())
		}
		if env.Type != want {
			t.Fatalf("event = %s, want %s", env.Type, want)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
		return signal.Envelope{}
	}
}

func TestClientFetchRoomID(t *testing.T) {
	ts, _ := startRendezvous(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := FetchRoomID(ctx, ts.Client(), ts.URL)
	if err != nil {
		t.Fatalf("FetchRoomID: %v", err)
	}
	if !roomid.Valid(id) {
		t.Fatalf("minted id %q is not valid", id)
	}
}

func TestClientsPairAndRelayPayloads(t *testing.T) {
	ts, srv := startRendezvous(t)

	host := dialClient(t, ts)
	guest := dialClient(t, ts)

	const room = "climbytest"
	if err := host.Create(room); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForRoom(t, srv, room)
	if err := guest.Join(room); err != nil {
		t.Fatalf("Join: %v", err)
	}

	awaitEvent(t, host, signal.EventReady)
	awaitEvent(t, guest, signal.EventReady)

	sdp := signal.SessionDescription{Type: "offer", SDP: "v=0 through the wire"}
	if err := host.SendPayload(signal.Payload{Type: signal.PayloadOffer, SDP: &sdp}); err != nil {
		t.Fatalf("SendPayload: %v", err)
	}

	env := awaitEvent(t, guest, signal.EventMessage)
	p, err := signal.ParsePayload(env.Payload)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.Type != signal.PayloadOffer || p.SDP == nil || p.SDP.SDP != sdp.SDP {
		t.Fatalf("relayed payload = %+v, want the offer back intact", p)
	}
}

func TestClientEndReachesPeer(t *testing.T) {
	ts, srv := startRendezvous(t)

	host := dialClient(t, ts)
	guest := dialClient(t, ts)

	const room = "endsignals"
	if err := host.Create(room); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForRoom(t, srv, room)
	if err := guest.Join(room); err != nil {
		t.Fatalf("Join: %v", err)
	}
	awaitEvent(t, host, signal.EventReady)
	awaitEvent(t, guest, signal.EventReady)

	if err := host.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	awaitEvent(t, guest, signal.EventEnd)

	// The survivor keeps its connection and can start a fresh call on it.
	const next = "endsecond2"
	if err := guest.Create(next); err != nil {
		t.Fatalf("Create after end: %v", err)
	}
	waitForRoom(t, srv, next)
}

func TestClientJoinMissingRoomGetsEmpty(t *testing.T) {
	ts, _ := startRendezvous(t)

	guest := dialClient(t, ts)
	if err := guest.Join("nosuchroom"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	awaitEvent(t, guest, signal.EventEmpty)

	// The connection stays open for another attempt.
	if err := guest.Create("nosuchroom"); err != nil {
		t.Fatalf("Create after empty: %v", err)
	}
}

func waitForRoom(t *testing.T, srv *rendezvous.Server, room string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !srv.Registry().InUse(room) {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never registered", room)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
