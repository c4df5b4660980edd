package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/ElijahCirioli/zing-video-chat/internal/roomid"
	"github.com/ElijahCirioli/zing-video-chat/internal/signal"
)

const (
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	clientPingPeriod = clientPongWait * 9 / 10
	clientMaxMessage = 64 * 1024
)

// ErrClientClosed is returned by sends after the connection is gone.
var ErrClientClosed = errors.New("signaling connection closed")

// Client is the call side of the rendezvous websocket. It satisfies
// Signaler; the read loop delivers server events on Incoming.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	incoming chan signal.Envelope
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to the rendezvous endpoint and starts the read and write
// pumps. url is the full websocket URL, e.g. ws://host:3000/ws.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		log:      log,
		incoming: make(chan signal.Envelope, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Incoming delivers server events in arrival order. The channel closes when
// the connection ends; check Err afterwards.
func (c *Client) Incoming() <-chan signal.Envelope { return c.incoming }

// Done closes when the connection has shut down in either direction.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. Nil for a clean local Close or a
// normal closure from the service.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Create asks the service to open a room with the given identifier.
func (c *Client) Create(room string) error {
	return c.send(signal.Envelope{Type: signal.EventCreate, Room: room})
}

// Join enters an existing room.
func (c *Client) Join(room string) error {
	return c.send(signal.Envelope{Type: signal.EventJoin, Room: room})
}

// SendPayload relays one payload to the peer through the service.
func (c *Client) SendPayload(p signal.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.send(signal.Envelope{Type: signal.EventMessage, Payload: raw})
}

// End tells the service to dissolve the room.
func (c *Client) End() error {
	return c.send(signal.Envelope{Type: signal.EventEnd})
}

func (c *Client) send(env signal.Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

// Close tears the connection down immediately.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer close(c.incoming)

	c.conn.SetReadLimit(clientMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.shutdown(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))

		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("undecodable server event", "err", err)
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// FetchRoomID asks the service to mint a fresh room identifier. baseURL is
// the HTTP origin, e.g. http://host:3000.
func FetchRoomID(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/roomId", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch room id: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch room id: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("fetch room id: %w", err)
	}
	id := strings.TrimSpace(string(body))
	if !roomid.Valid(id) {
		return "", fmt.Errorf("fetch room id: malformed id %q", id)
	}
	return id, nil
}

// FetchICEServers retrieves the ICE server set the service advertises, so
// both peers agree on STUN and TURN without local configuration.
func FetchICEServers(ctx context.Context, client *http.Client, baseURL string) ([]webrtc.ICEServer, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(baseURL, "/")+"/iceServers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ice servers: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	return out.ICEServers, nil
}
