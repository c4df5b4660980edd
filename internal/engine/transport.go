package engine

import (
	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// State is the engine's position in the call lifecycle.
type State int

const (
	StateIdle State = iota
	// StateAwaitingPeer: create/join sent, waiting for the service to pair us.
	StateAwaitingPeer
	// StateNegotiating: transport exists, first offer/answer round in flight.
	StateNegotiating
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Transport abstracts a peer connection. The pion adapter is the production
// implementation; tests substitute a fake.
type Transport interface {
	// Offer creates a local offer, applies it locally and returns it.
	Offer() (signal.SessionDescription, error)

	// Answer applies the remote offer, creates an answer, applies it locally
	// and returns it.
	Answer(remote signal.SessionDescription) (signal.SessionDescription, error)

	// AcceptAnswer applies the remote answer to a previously sent offer.
	AcceptAnswer(remote signal.SessionDescription) error

	AddRemoteCandidate(c signal.Candidate) error

	AddTrack(track webrtc.TrackLocal) error
	RemoveTrack(track webrtc.TrackLocal) error

	Close() error
}

// MediaSource supplies the local tracks to publish. Acquisition failure is
// not fatal: the call continues without the tracks and the peer learns about
// it through a status update.
type MediaSource interface {
	Tracks() ([]webrtc.TrackLocal, error)
}

// Signaler carries payloads to the remote peer and room controls to the
// rendezvous service.
type Signaler interface {
	SendPayload(p signal.Payload) error
	End() error
}
