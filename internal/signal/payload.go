package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// PayloadType discriminates the signaling messages relayed between the two
// occupants of a room. The rendezvous service never inspects these; they are
// the negotiation engine's protocol.
type PayloadType string

const (
	PayloadOffer        PayloadType = "offer"
	PayloadAnswer       PayloadType = "answer"
	PayloadCandidate    PayloadType = "candidate"
	PayloadStatusUpdate PayloadType = "statusUpdate"
	PayloadPing         PayloadType = "ping"
)

// SessionDescription is a JSON-friendly SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SessionDescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// Candidate is a trickled network-path candidate.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Status is the advisory track-presence and display-name record exchanged via
// statusUpdate payloads. It never affects the media path itself.
type Status struct {
	Audio bool   `json:"audio"`
	Video bool   `json:"video"`
	Name  string `json:"name"`
}

// Payload is a decoded signaling message.
type Payload struct {
	Type PayloadType `json:"type"`

	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty"`
	Status    *Status             `json:"status,omitempty"`
}

// ParsePayload decodes and validates a relayed signaling payload.
func ParsePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Payload{}, fmt.Errorf("unexpected trailing data")
	}
	if err := p.validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (p Payload) validate() error {
	switch p.Type {
	case PayloadOffer:
		if p.SDP == nil {
			return fmt.Errorf("offer payload missing sdp")
		}
		if p.SDP.Type != "offer" {
			return fmt.Errorf("offer payload has sdp.type=%q", p.SDP.Type)
		}
		if p.Candidate != nil || p.Status != nil {
			return fmt.Errorf("offer payload has unexpected fields")
		}
	case PayloadAnswer:
		if p.SDP == nil {
			return fmt.Errorf("answer payload missing sdp")
		}
		if p.SDP.Type != "answer" {
			return fmt.Errorf("answer payload has sdp.type=%q", p.SDP.Type)
		}
		if p.Candidate != nil || p.Status != nil {
			return fmt.Errorf("answer payload has unexpected fields")
		}
	case PayloadCandidate:
		if p.Candidate == nil {
			return fmt.Errorf("candidate payload missing candidate")
		}
		if p.SDP != nil || p.Status != nil {
			return fmt.Errorf("candidate payload has unexpected fields")
		}
	case PayloadStatusUpdate:
		if p.Status == nil {
			return fmt.Errorf("statusUpdate payload missing status")
		}
		if p.SDP != nil || p.Candidate != nil {
			return fmt.Errorf("statusUpdate payload has unexpected fields")
		}
	case PayloadPing:
		// Carries nothing. It exists only to reset inactivity timers and must
		// be droppable by the remote side without effect.
		if p.SDP != nil || p.Candidate != nil || p.Status != nil {
			return fmt.Errorf("ping payload has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported payload type %q", p.Type)
	}
	return nil
}
