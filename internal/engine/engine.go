package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// ErrNotConfigured is returned by New when a required collaborator is missing.
var ErrNotConfigured = errors.New("engine: missing required configuration")

type Config struct {
	// Initiator marks the room creator. Only the initiator produces offers,
	// both on the first round and on every renegotiation.
	Initiator bool

	// Media supplies local tracks. Nil means a receive-only call.
	Media MediaSource

	// NewTransport builds the peer connection when the service pairs us.
	NewTransport func() (Transport, error)

	Signaler Signaler

	Logger *slog.Logger

	// LocalStatus seeds the advisory state announced to the peer.
	LocalStatus signal.Status

	// InactivityTimeout for the keepalive watch; zero means the default.
	InactivityTimeout time.Duration

	// OnStateChange observes every transition. Optional.
	OnStateChange func(State)

	// OnRemoteStatus observes peer status updates. Optional.
	OnRemoteStatus func(signal.Status)

	// OnInactive fires when the call has seen no signaling activity for
	// InactivityTimeout. It prompts the user; it never ends the call.
	OnInactive func()
}

// Engine is one side of a call. All public methods are safe for concurrent
// use; transport callbacks and the signaling read loop may both drive it.
type Engine struct {
	mu sync.Mutex

	cfg Config
	log *slog.Logger

	state     State
	transport Transport

	// remoteSet flags that the remote description has been applied, so
	// candidates no longer need queueing.
	remoteSet bool
	pending   []signal.Candidate

	local  *StatusRecord
	remote *StatusRecord

	keepalive *Keepalive
}

func New(cfg Config) (*Engine, error) {
	if cfg.NewTransport == nil || cfg.Signaler == nil {
		return nil, ErrNotConfigured
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		log:    log,
		state:  StateIdle,
		local:  NewStatusRecord(cfg.LocalStatus),
		remote: &StatusRecord{},
	}, nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) LocalStatus() signal.Status  { return e.local.Get() }
func (e *Engine) RemoteStatus() signal.Status { return e.remote.Get() }

// Begin moves to AwaitingPeer. Call it right after sending create or join.
func (e *Engine) Begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return
	}
	e.setStateLocked(StateAwaitingPeer)
	if e.keepalive == nil {
		onExpire := e.cfg.OnInactive
		if onExpire == nil {
			onExpire = func() {}
		}
		e.keepalive = NewKeepalive(e.cfg.InactivityTimeout, onExpire)
	}
}

// HandleEnvelope dispatches one server-to-client event.
func (e *Engine) HandleEnvelope(env signal.Envelope) error {
	switch env.Type {
	case signal.EventReady:
		return e.handleReady()
	case signal.EventFull:
		e.abort("room full")
		return nil
	case signal.EventEmpty:
		e.abort("room empty")
		return nil
	case signal.EventEnd:
		e.Teardown()
		return nil
	case signal.EventMessage:
		p, err := signal.ParsePayload(env.Payload)
		if err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return e.handlePayload(p)
	default:
		e.log.Debug("ignoring unexpected event", "type", env.Type)
		return nil
	}
}

func (e *Engine) handleReady() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAwaitingPeer {
		e.log.Debug("ready in unexpected state", "state", e.state)
		return nil
	}

	transport, err := e.cfg.NewTransport()
	if err != nil {
		e.teardownLocked()
		return fmt.Errorf("create transport: %w", err)
	}
	e.transport = transport
	e.remoteSet = false

	e.addLocalTracksLocked()
	e.setStateLocked(StateNegotiating)

	if e.cfg.Initiator {
		offer, err := transport.Offer()
		if err != nil {
			e.teardownLocked()
			return fmt.Errorf("offer: %w", err)
		}
		return e.sendLocked(signal.Payload{Type: signal.PayloadOffer, SDP: &offer})
	}
	return nil
}

// addLocalTracksLocked acquires media and publishes it. Failure downgrades
// the advertised status instead of aborting the call.
func (e *Engine) addLocalTracksLocked() {
	if e.cfg.Media == nil {
		return
	}
	tracks, err := e.cfg.Media.Tracks()
	if err != nil {
		e.log.Warn("media acquisition failed, continuing without tracks", "err", err)
		e.local.Set(signal.Status{Audio: false, Video: false, Name: e.local.Get().Name})
		return
	}
	for _, track := range tracks {
		if err := e.transport.AddTrack(track); err != nil {
			e.log.Warn("add track failed", "err", err)
		}
	}
}

func (e *Engine) handlePayload(p signal.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.keepalive != nil {
		e.keepalive.Reset()
	}

	switch p.Type {
	case signal.PayloadOffer:
		return e.handleOfferLocked(*p.SDP)
	case signal.PayloadAnswer:
		return e.handleAnswerLocked(*p.SDP)
	case signal.PayloadCandidate:
		return e.handleCandidateLocked(*p.Candidate)
	case signal.PayloadStatusUpdate:
		e.handleStatusLocked(*p.Status)
		return nil
	case signal.PayloadPing:
		// Activity only; the reset above is the whole effect.
		return nil
	default:
		return fmt.Errorf("unsupported payload type %q", p.Type)
	}
}

func (e *Engine) handleOfferLocked(remote signal.SessionDescription) error {
	if e.transport == nil {
		e.log.Debug("offer before pairing, ignoring")
		return nil
	}
	if e.cfg.Initiator {
		// Only the initiator offers; a crossed offer means a misbehaving peer.
		e.log.Warn("offer received by initiator, ignoring")
		return nil
	}

	answer, err := e.transport.Answer(remote)
	if err != nil {
		e.teardownLocked()
		return fmt.Errorf("answer: %w", err)
	}
	e.remoteSet = true
	e.flushPendingLocked()

	if err := e.sendLocked(signal.Payload{Type: signal.PayloadAnswer, SDP: &answer}); err != nil {
		return err
	}
	if e.state == StateNegotiating {
		e.setStateLocked(StateConnected)
		return e.sendStatusLocked()
	}
	return nil
}

func (e *Engine) handleAnswerLocked(remote signal.SessionDescription) error {
	if e.transport == nil || !e.cfg.Initiator {
		e.log.Debug("unexpected answer, ignoring")
		return nil
	}

	if err := e.transport.AcceptAnswer(remote); err != nil {
		e.teardownLocked()
		return fmt.Errorf("accept answer: %w", err)
	}
	e.remoteSet = true
	e.flushPendingLocked()

	if e.state == StateNegotiating {
		e.setStateLocked(StateConnected)
	}
	// Every applied answer, first round or renegotiation, re-syncs status so
	// the peer always hears about track changes that prompted the round.
	return e.sendStatusLocked()
}

func (e *Engine) handleCandidateLocked(c signal.Candidate) error {
	if e.transport == nil || !e.remoteSet {
		e.pending = append(e.pending, c)
		return nil
	}
	if err := e.transport.AddRemoteCandidate(c); err != nil {
		e.log.Warn("add remote candidate failed", "err", err)
	}
	return nil
}

func (e *Engine) flushPendingLocked() {
	for _, c := range e.pending {
		if err := e.transport.AddRemoteCandidate(c); err != nil {
			e.log.Warn("flush remote candidate failed", "err", err)
		}
	}
	e.pending = nil
}

func (e *Engine) handleStatusLocked(s signal.Status) {
	if e.state == StateIdle || e.state == StateAwaitingPeer {
		e.log.Debug("status update before pairing, ignoring")
		return
	}
	e.remote.Set(s)
	if e.cfg.OnRemoteStatus != nil {
		e.cfg.OnRemoteStatus(s)
	}
}

// Renegotiate starts a fresh offer round after a local media change. Only
// the initiator does this; the joiner's track changes surface through status
// updates until the initiator renegotiates.
func (e *Engine) Renegotiate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renegotiateLocked()
}

func (e *Engine) renegotiateLocked() error {
	if !e.cfg.Initiator || e.state != StateConnected || e.transport == nil {
		return nil
	}
	offer, err := e.transport.Offer()
	if err != nil {
		return fmt.Errorf("renegotiate offer: %w", err)
	}
	return e.sendLocked(signal.Payload{Type: signal.PayloadOffer, SDP: &offer})
}

// AddLocalTrack publishes a track mid-call. The initiator follows up with
// the renegotiation round the change requires.
func (e *Engine) AddLocalTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return errors.New("no active call")
	}
	if err := e.transport.AddTrack(track); err != nil {
		return err
	}
	if err := e.noteTrackLocked(track.Kind(), true); err != nil {
		return err
	}
	return e.renegotiateLocked()
}

// RemoveLocalTrack withdraws a previously published track.
func (e *Engine) RemoveLocalTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return errors.New("no active call")
	}
	if err := e.transport.RemoveTrack(track); err != nil {
		return err
	}
	if err := e.noteTrackLocked(track.Kind(), false); err != nil {
		return err
	}
	return e.renegotiateLocked()
}

// noteTrackLocked folds a track change into the advertised status and, when
// the call is up, announces it to the peer.
func (e *Engine) noteTrackLocked(kind webrtc.RTPCodecType, present bool) error {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		e.local.SetAudio(present)
	case webrtc.RTPCodecTypeVideo:
		e.local.SetVideo(present)
	default:
		return nil
	}
	if e.state != StateConnected {
		return nil
	}
	return e.sendStatusLocked()
}

// SendLocalCandidate forwards a locally gathered candidate to the peer. Wire
// it to the transport's candidate callback.
func (e *Engine) SendLocalCandidate(c signal.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle || e.state == StateEnded {
		return
	}
	if err := e.sendLocked(signal.Payload{Type: signal.PayloadCandidate, Candidate: &c}); err != nil {
		e.log.Warn("send local candidate failed", "err", err)
	}
}

// Ping sends the inert keepalive payload.
func (e *Engine) Ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle || e.state == StateEnded {
		return nil
	}
	return e.sendLocked(signal.Payload{Type: signal.PayloadPing})
}

func (e *Engine) SetAudio(on bool) error { return e.announce(e.local.SetAudio(on)) }
func (e *Engine) SetVideo(on bool) error { return e.announce(e.local.SetVideo(on)) }
func (e *Engine) SetName(name string) error {
	return e.announce(e.local.SetName(name))
}

func (e *Engine) announce(s signal.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return nil
	}
	return e.sendLocked(signal.Payload{Type: signal.PayloadStatusUpdate, Status: &s})
}

func (e *Engine) sendStatusLocked() error {
	s := e.local.Get()
	return e.sendLocked(signal.Payload{Type: signal.PayloadStatusUpdate, Status: &s})
}

func (e *Engine) sendLocked(p signal.Payload) error {
	if err := e.cfg.Signaler.SendPayload(p); err != nil {
		return fmt.Errorf("send %s: %w", p.Type, err)
	}
	if e.keepalive != nil {
		e.keepalive.Reset()
	}
	return nil
}

// Hangup ends the call from our side: the service notifies the peer and
// dissolves the room.
func (e *Engine) Hangup() {
	e.mu.Lock()
	if e.state == StateIdle || e.state == StateEnded {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.cfg.Signaler.End(); err != nil {
		e.log.Debug("end notification failed", "err", err)
	}
	e.Teardown()
}

// Teardown releases the transport and returns to Idle, passing through Ended
// so observers see the terminal state.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.state == StateIdle {
		return
	}
	if e.transport != nil {
		if err := e.transport.Close(); err != nil {
			e.log.Debug("transport close failed", "err", err)
		}
		e.transport = nil
	}
	if e.keepalive != nil {
		e.keepalive.Stop()
		e.keepalive = nil
	}
	e.pending = nil
	e.remoteSet = false
	e.remote.Set(signal.Status{})

	e.setStateLocked(StateEnded)
	e.setStateLocked(StateIdle)
}

// abort handles full and empty while waiting for a peer. No call existed
// yet, so it returns straight to Idle without an Ended observation.
func (e *Engine) abort(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAwaitingPeer {
		return
	}
	e.log.Info("pairing aborted", "reason", reason)
	if e.keepalive != nil {
		e.keepalive.Stop()
		e.keepalive = nil
	}
	e.pending = nil
	e.remoteSet = false
	e.setStateLocked(StateIdle)
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	if e.cfg.OnStateChange != nil {
		e.cfg.OnStateChange(s)
	}
}
