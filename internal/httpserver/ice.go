package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/origin"
)

// handleICEServers hands clients the STUN/TURN set so both peers of a call
// negotiate against the same servers. When a TURN REST secret is configured,
// TURN entries are stamped with freshly minted short-lived credentials.
func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	if header := r.Header.Get("Origin"); header != "" {
		if !origin.Allowed(header, r.Host, s.cfg.AllowedOrigins) {
			WriteJSON(w, http.StatusForbidden, map[string]any{"error": "origin not allowed"})
			return
		}
	}

	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}

	servers := s.cfg.ICEServers
	if s.turn != nil {
		creds, err := s.turn.Mint("")
		if err != nil {
			s.log.Error("turn credential minting failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "credential minting failed"})
			return
		}
		servers = withTURNCredentials(servers, creds.Username, creds.Credential)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

// withTURNCredentials copies the server list, overriding the login on every
// entry that carries a turn: or turns: URL.
func withTURNCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if hasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		u := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}
