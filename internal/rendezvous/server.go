// Package rendezvous implements the capacity-two room service: short-lived
// rooms where exactly two clients meet and exchange opaque signaling
// messages until one of them leaves.
package rendezvous

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ElijahCirioli/zing-video-chat/internal/metrics"
	"github.com/ElijahCirioli/zing-video-chat/internal/origin"
	"github.com/ElijahCirioli/zing-video-chat/internal/ratelimit"
	"github.com/ElijahCirioli/zing-video-chat/internal/roomid"
	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// Options tunes per-connection behavior. Zero values take defaults.
type Options struct {
	// MaxMessageBytes caps a single inbound frame. Large enough for any SDP.
	MaxMessageBytes int64

	// MessagesPerSecond and MessageBurst bound the inbound signaling rate of
	// one connection.
	MessagesPerSecond int64
	MessageBurst      int64

	// PongWait is how long a connection may stay silent before it is presumed
	// dead. PingInterval must be shorter; it defaults to 9/10 of PongWait.
	PongWait     time.Duration
	PingInterval time.Duration
	WriteWait    time.Duration

	// SendBuffer is the per-participant outbound queue length. Frames beyond
	// it are dropped, never queued unboundedly.
	SendBuffer int

	// AllowedOrigins is the browser Origin allowlist for the upgrade.
	// Requests without an Origin header (non-browser clients) always pass;
	// with an empty list, browsers must come from the same host.
	AllowedOrigins []string

	// Clock feeds the rate limiter. Nil means the system clock.
	Clock ratelimit.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 20
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 40
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

// Server owns the websocket endpoint and the room registry.
type Server struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *Registry
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(log *slog.Logger, m *metrics.Metrics, reg *Registry, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		log:      log,
		metrics:  m,
		registry: reg,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				header := r.Header.Get("Origin")
				if header == "" {
					return true
				}
				return origin.Allowed(header, r.Host, opts.AllowedOrigins)
			},
		},
	}
}

// Registry exposes the room registry, mainly for the id-generation route.
func (s *Server) Registry() *Registry { return s.registry }

// Pre-marshaled service-to-client notifications.
var (
	readyFrame = mustFrame(signal.Envelope{Type: signal.EventReady})
	fullFrame  = mustFrame(signal.Envelope{Type: signal.EventFull})
	emptyFrame = mustFrame(signal.Envelope{Type: signal.EventEmpty})
	endFrame   = mustFrame(signal.Envelope{Type: signal.EventEnd})
)

func mustFrame(env signal.Envelope) []byte {
	b, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return b
}

// ServeHTTP upgrades the request and runs the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newParticipant(uuid.NewString(), conn, s.opts.SendBuffer)
	s.log.Debug("participant connected", "participant", p.ID, "remote", r.RemoteAddr)

	go p.writePump(s.opts.PingInterval, s.opts.WriteWait)
	s.readLoop(p)
}

func (s *Server) readLoop(p *Participant) {
	defer func() {
		if other, ok := s.registry.Leave(p); ok {
			s.metrics.Inc(metrics.EventRoomsEnded)
			s.log.Info("room ended", "participant", p.ID)
			// The survivor is notified and unseated but keeps its connection,
			// so it can create or join another room right away.
			if other != nil {
				other.enqueue(endFrame)
			}
		}
		p.close()
		s.log.Debug("participant disconnected", "participant", p.ID)
	}()

	conn := p.conn
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	bucket := ratelimit.NewBucket(s.opts.Clock, s.opts.MessageBurst, s.opts.MessagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if msgType != websocket.TextMessage {
			p.closeWith(websocket.CloseUnsupportedData, "expected text message", s.opts.WriteWait)
			return
		}
		if !bucket.Allow() {
			s.metrics.Inc(metrics.EventRateLimited)
			p.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded", s.opts.WriteWait)
			return
		}

		env, err := signal.ParseEnvelope(data)
		if err != nil {
			s.log.Debug("invalid message", "participant", p.ID, "err", err)
			p.closeWith(websocket.CloseUnsupportedData, "invalid message", s.opts.WriteWait)
			return
		}

		switch env.Type {
		case signal.EventCreate:
			if !s.handleCreate(p, env.Room) {
				return
			}
		case signal.EventJoin:
			if !s.handleJoin(p, env.Room) {
				return
			}
		case signal.EventMessage:
			s.handleMessage(p, env.Payload)
		case signal.EventEnd:
			// Teardown runs in the deferred Leave so an abrupt disconnect and
			// an explicit end behave identically.
			return
		}
	}
}

func (s *Server) handleCreate(p *Participant, id string) bool {
	if !s.registry.Create(id, p) {
		// The id already names an active room, or the caller is already
		// seated somewhere. Either way the caller is told the room is taken
		// and keeps its connection, free to try another id.
		s.metrics.Inc(metrics.EventCreateFull)
		s.log.Info("room unavailable", "room", id, "participant", p.ID)
		p.enqueue(fullFrame)
		return true
	}
	s.metrics.Inc(metrics.EventRoomsCreated)
	s.log.Info("room created", "room", id, "participant", p.ID)
	return true
}

func (s *Server) handleJoin(p *Participant, id string) bool {
	host, outcome := s.registry.Join(id, p)
	switch outcome {
	case OutcomeOK:
		s.metrics.Inc(metrics.EventRoomsJoined)
		s.log.Info("room joined", "room", id, "participant", p.ID)
		// Both sides learn the pairing at the same moment. The joiner uses it
		// to start acquiring media, the creator to begin the offer.
		host.enqueue(readyFrame)
		p.enqueue(readyFrame)
	case OutcomeFull:
		s.metrics.Inc(metrics.EventJoinFull)
		p.enqueue(fullFrame)
	case OutcomeEmpty:
		s.metrics.Inc(metrics.EventJoinEmpty)
		p.enqueue(emptyFrame)
	}
	return true
}

func (s *Server) handleMessage(p *Participant, payload json.RawMessage) {
	peer, ok := s.registry.Peer(p)
	if !ok {
		s.metrics.Inc(metrics.EventRelayDropped)
		s.log.Debug("message with no peer", "participant", p.ID)
		return
	}

	// The payload is relayed byte for byte; the service never interprets it.
	frame, err := json.Marshal(signal.Envelope{Type: signal.EventMessage, Payload: payload})
	if err != nil {
		s.metrics.Inc(metrics.EventRelayDropped)
		return
	}
	if peer.enqueue(frame) {
		s.metrics.Inc(metrics.EventMessagesRelayed)
	} else {
		s.metrics.Inc(metrics.EventRelayDropped)
		s.log.Debug("relay queue full", "participant", peer.ID)
	}
}

// HandleRoomID serves GET /roomId: a fresh id, guaranteed not to collide
// with any active room, as a bare plain-text string.
func (s *Server) HandleRoomID(w http.ResponseWriter, r *http.Request) {
	s.metrics.Inc(metrics.EventRoomIDRequests)

	id, err := roomid.New(s.registry.InUse)
	if err != nil {
		s.log.Error("room id generation failed", "err", err)
		http.Error(w, "could not generate room id", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(id))
}
