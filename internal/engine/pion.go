package engine

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// PionTransport adapts a pion PeerConnection to the Transport interface.
type PionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[webrtc.TrackLocal]*webrtc.RTPSender
}

func NewPionTransport(iceServers []webrtc.ICEServer) (*PionTransport, error) {
	return NewPionTransportWithAPI(webrtc.NewAPI(), iceServers)
}

// NewPionTransportWithAPI accepts a custom API, which tests use to inject a
// virtual network.
func NewPionTransportWithAPI(api *webrtc.API, iceServers []webrtc.ICEServer) (*PionTransport, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &PionTransport{
		pc:      pc,
		senders: make(map[webrtc.TrackLocal]*webrtc.RTPSender),
	}, nil
}

// PeerConnection exposes the underlying connection for media plumbing.
func (t *PionTransport) PeerConnection() *webrtc.PeerConnection {
	return t.pc
}

// OnICECandidate registers f for trickled local candidates. pion signals the
// end of gathering with a nil candidate, which is filtered out here.
func (t *PionTransport) OnICECandidate(f func(signal.Candidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		f(signal.CandidateFromPion(c.ToJSON()))
	})
}

func (t *PionTransport) OnTrack(f func(*webrtc.TrackRemote)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f(track)
	})
}

func (t *PionTransport) OnNegotiationNeeded(f func()) {
	t.pc.OnNegotiationNeeded(f)
}

func (t *PionTransport) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(f)
}

func (t *PionTransport) Offer() (signal.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return signal.SessionDescriptionFromPion(*t.pc.LocalDescription()), nil
}

func (t *PionTransport) Answer(remote signal.SessionDescription) (signal.SessionDescription, error) {
	desc, err := remote.ToPion()
	if err != nil {
		return signal.SessionDescription{}, err
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return signal.SessionDescriptionFromPion(*t.pc.LocalDescription()), nil
}

func (t *PionTransport) AcceptAnswer(remote signal.SessionDescription) error {
	desc, err := remote.ToPion()
	if err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *PionTransport) AddRemoteCandidate(c signal.Candidate) error {
	if err := t.pc.AddICECandidate(c.ToPion()); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (t *PionTransport) AddTrack(track webrtc.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	t.mu.Lock()
	t.senders[track] = sender
	t.mu.Unlock()
	return nil
}

func (t *PionTransport) RemoveTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	sender, ok := t.senders[track]
	delete(t.senders, track)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove track: track was never added")
	}
	if err := t.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("remove track: %w", err)
	}
	return nil
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}
