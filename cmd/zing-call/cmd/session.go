package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	osignal "os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/config"
	"github.com/ElijahCirioli/zing-video-chat/internal/engine"
	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

// runCall drives one call end to end: connect to the rendezvous service,
// create or join the room, negotiate with the peer and stay on the call
// until either side hangs up.
func runCall(room string, initiator bool) error {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	iceServers, err := resolveICEServers(ctx)
	if err != nil {
		return err
	}

	client, err := engine.Dial(ctx, websocketURL(flagServer), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var eng *engine.Engine
	newTransport := func() (engine.Transport, error) {
		pt, err := engine.NewPionTransport(iceServers)
		if err != nil {
			return nil, err
		}
		pc := pt.PeerConnection()

		// The terminal endpoint publishes nothing; receive-only transceivers
		// give the session its audio and video sections.
		kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}
		for _, kind := range kinds {
			_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				pt.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}

		pt.OnICECandidate(func(c signal.Candidate) {
			eng.SendLocalCandidate(c)
		})
		pt.OnTrack(func(tr *webrtc.TrackRemote) {
			fmt.Printf("receiving %s from peer (%s)\n", tr.Kind(), tr.Codec().MimeType)
			go drainTrack(tr)
		})
		pt.OnNegotiationNeeded(func() {
			if err := eng.Renegotiate(); err != nil {
				logger.Warn("renegotiation failed", "err", err)
			}
		})
		pt.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			logger.Debug("peer connection state", "state", s)
		})
		return pt, nil
	}

	eng, err = engine.New(engine.Config{
		Initiator:    initiator,
		NewTransport: newTransport,
		Signaler:     client,
		Logger:       logger,
		LocalStatus:  signal.Status{Name: flagName},
		OnStateChange: func(s engine.State) {
			switch s {
			case engine.StateConnected:
				fmt.Println("connected")
			case engine.StateEnded:
				fmt.Println("call ended")
			}
		},
		OnRemoteStatus: func(s signal.Status) {
			name := s.Name
			if name == "" {
				name = "peer"
			}
			fmt.Printf("%s: audio %s, video %s\n", name, onOff(s.Audio), onOff(s.Video))
		},
		OnInactive: func() {
			fmt.Println("no activity for a while, still there? (the call stays up)")
		},
	})
	if err != nil {
		return err
	}

	if initiator {
		err = client.Create(room)
	} else {
		err = client.Join(room)
	}
	if err != nil {
		return err
	}
	eng.Begin()

	for {
		select {
		case env, ok := <-client.Incoming():
			if !ok {
				eng.Teardown()
				if err := client.Err(); err != nil {
					return fmt.Errorf("signaling connection lost: %w", err)
				}
				return nil
			}
			if err := eng.HandleEnvelope(env); err != nil {
				logger.Warn("event handling failed", "type", env.Type, "err", err)
			}
			switch env.Type {
			case signal.EventFull:
				return fmt.Errorf("room %s already has two participants", room)
			case signal.EventEmpty:
				return fmt.Errorf("room %s does not exist", room)
			case signal.EventEnd:
				return nil
			}
		case <-ctx.Done():
			eng.Hangup()
			return nil
		}
	}
}

// resolveICEServers prefers the service's advertised set so both peers agree,
// then explicit flags, then the default public STUN server.
func resolveICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	if len(flagSTUN) > 0 || len(flagTURN) > 0 {
		return config.ParseICEServersFromConvenienceEnv(
			strings.Join(flagSTUN, ","),
			strings.Join(flagTURN, ","),
			flagTURNUser,
			flagTURNPass,
		)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	servers, err := engine.FetchICEServers(fetchCtx, nil, flagServer)
	if err == nil && len(servers) > 0 {
		return servers, nil
	}
	if err != nil {
		slog.Debug("service has no ice configuration, using defaults", "err", err)
	}
	return []webrtc.ICEServer{{URLs: config.DefaultSTUNURLs}}, nil
}

func websocketURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// drainTrack keeps the RTP flowing; without a reader pion's buffers fill and
// the sender is throttled.
func drainTrack(tr *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := tr.Read(buf); err != nil {
			return
		}
	}
}
