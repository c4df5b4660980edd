package metrics

import "sync"

// Event counter names. Each one counts a room lifecycle transition or a
// dropped/refused client action.
const (
	EventRoomsCreated    = "rooms_created"
	EventRoomsJoined     = "rooms_joined"
	EventCreateFull      = "create_full"
	EventJoinFull        = "join_full"
	EventJoinEmpty       = "join_empty"
	EventMessagesRelayed = "messages_relayed"
	EventRelayDropped    = "relay_dropped"
	EventRoomsEnded      = "rooms_ended"
	EventRateLimited     = "rate_limited"
	EventRoomIDRequests  = "room_id_requests"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The service is expected to plug into a real metrics backend eventually;
// this type keeps the rendezvous logic testable while still being scrapeable
// via the Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
