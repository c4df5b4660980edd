package rendezvous

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Participant is one websocket connection attached to the rendezvous service.
//
// All writes to the connection happen on the writePump goroutine; other
// goroutines hand frames over through the buffered send channel. Relay
// delivery is at most once: a frame that does not fit in the buffer is
// dropped rather than blocking the sender.
type Participant struct {
	ID string

	conn *websocket.Conn
	send chan []byte

	shutdownOnce sync.Once
	closeOnce    sync.Once
	done         chan struct{}
}

func newParticipant(id string, conn *websocket.Conn, sendBuffer int) *Participant {
	return &Participant{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the participant is gone or its buffer is full.
func (p *Participant) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	case <-p.done:
		return false
	default:
		return false
	}
}

// shutdown asks the write pump to flush queued frames, send a close frame and
// tear the connection down. Frames enqueued before the call still go out; an
// "end" notification is often enqueued right before the room dissolves.
func (p *Participant) shutdown() {
	p.shutdownOnce.Do(func() { close(p.done) })
}

// close tears the connection down immediately. Safe from any goroutine, any
// number of times.
func (p *Participant) close() {
	p.shutdown()
	p.closeOnce.Do(func() { _ = p.conn.Close() })
}

// closeWith sends a close control frame carrying a reason before tearing
// down, bypassing the write pump's queue.
func (p *Participant) closeWith(code int, reason string, writeWait time.Duration) {
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	p.close()
}

// writePump serializes all writes to the connection and keeps it alive with
// periodic pings. It exits when the participant shuts down or a write fails.
func (p *Participant) writePump(pingPeriod, writeWait time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			for {
				select {
				case frame := <-p.send:
					_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
