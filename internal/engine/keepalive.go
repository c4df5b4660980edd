package engine

import (
	"sync"
	"time"
)

// DefaultInactivityTimeout is how long a call may sit with no signaling
// activity in either direction before the user is prompted.
const DefaultInactivityTimeout = 50 * time.Minute

// Keepalive watches for signaling inactivity. Every inbound or outbound
// payload resets it; on expiry it invokes the callback exactly once per
// expiry and keeps running, so the user is prompted rather than the call
// being torn down.
type Keepalive struct {
	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	stopped bool
}

func NewKeepalive(timeout time.Duration, onExpire func()) *Keepalive {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	k := &Keepalive{timeout: timeout}
	k.timer = time.AfterFunc(timeout, func() {
		onExpire()
		k.Reset()
	})
	return k
}

// Reset restarts the inactivity window.
func (k *Keepalive) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.timer.Reset(k.timeout)
}

// Stop ends the watch. Safe to call more than once.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.stopped = true
	k.timer.Stop()
}
