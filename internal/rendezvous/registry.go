package rendezvous

import "sync"

// Outcome classifies a join attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeFull means the room already holds two participants.
	OutcomeFull
	// OutcomeEmpty means no active room has the requested id.
	OutcomeEmpty
)

// Registry tracks active rooms. A room holds at most two participants and the
// occupancy check-and-set is atomic, so two racing joins on a one-occupant
// room resolve to exactly one OutcomeOK and one OutcomeFull.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	index map[*Participant]string
}

type room struct {
	host  *Participant
	guest *Participant
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		index: make(map[*Participant]string),
	}
}

// Create claims id for p. It fails when the id already names an active room
// or when p already occupies one.
func (r *Registry) Create(id string, p *Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[id]; exists {
		return false
	}
	if _, busy := r.index[p]; busy {
		return false
	}
	r.rooms[id] = &room{host: p}
	r.index[p] = id
	return true
}

// Join seats p in room id. On OutcomeOK the returned participant is the
// occupant that was already waiting.
func (r *Registry) Join(id string, p *Participant) (*Participant, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[id]
	if !exists {
		return nil, OutcomeEmpty
	}
	if rm.guest != nil {
		return nil, OutcomeFull
	}
	if _, busy := r.index[p]; busy {
		return nil, OutcomeFull
	}
	rm.guest = p
	r.index[p] = id
	return rm.host, OutcomeOK
}

// Leave removes p and dissolves its room entirely, so the id immediately
// behaves as if it never existed. The returned participant is the other
// occupant, if any, which the caller must notify.
func (r *Registry) Leave(p *Participant) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.index[p]
	if !ok {
		return nil, false
	}
	rm := r.rooms[id]
	delete(r.rooms, id)
	delete(r.index, p)

	var other *Participant
	if rm.host == p {
		other = rm.guest
	} else {
		other = rm.host
	}
	if other != nil {
		delete(r.index, other)
	}
	return other, true
}

// Peer returns the other occupant of p's room.
func (r *Registry) Peer(p *Participant) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.index[p]
	if !ok {
		return nil, false
	}
	rm := r.rooms[id]
	if rm.host == p {
		if rm.guest == nil {
			return nil, false
		}
		return rm.guest, true
	}
	return rm.host, true
}

// InUse reports whether id names an active room.
func (r *Registry) InUse(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[id]
	return ok
}

// Len returns the number of active rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
