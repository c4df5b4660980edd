package rendezvous

import (
	"sync"
	"testing"
)

func testParticipant(id string) *Participant {
	return &Participant{
		ID:   id,
		send: make(chan []byte, 8),
		done: make(chan struct{}),
	}
}

func TestRegistry_CreateJoinPeer(t *testing.T) {
	reg := NewRegistry()
	host := testParticipant("host")
	guest := testParticipant("guest")

	if !reg.Create("room1", host) {
		t.Fatalf("create failed")
	}
	if !reg.InUse("room1") {
		t.Fatalf("room not reported in use")
	}

	got, outcome := reg.Join("room1", guest)
	if outcome != OutcomeOK {
		t.Fatalf("join outcome=%v, want OK", outcome)
	}
	if got != host {
		t.Fatalf("join returned %v, want host", got)
	}

	if peer, ok := reg.Peer(host); !ok || peer != guest {
		t.Fatalf("host peer=%v ok=%v", peer, ok)
	}
	if peer, ok := reg.Peer(guest); !ok || peer != host {
		t.Fatalf("guest peer=%v ok=%v", peer, ok)
	}
}

func TestRegistry_JoinOutcomes(t *testing.T) {
	reg := NewRegistry()
	host := testParticipant("host")

	if _, outcome := reg.Join("nosuch", testParticipant("x")); outcome != OutcomeEmpty {
		t.Fatalf("join on unknown id: outcome=%v, want Empty", outcome)
	}

	reg.Create("room1", host)
	if _, outcome := reg.Join("room1", testParticipant("guest")); outcome != OutcomeOK {
		t.Fatalf("first join rejected")
	}
	if _, outcome := reg.Join("room1", testParticipant("late")); outcome != OutcomeFull {
		t.Fatalf("join on full room: want Full")
	}
}

func TestRegistry_CreateDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	reg.Create("room1", testParticipant("a"))
	if reg.Create("room1", testParticipant("b")) {
		t.Fatalf("duplicate create succeeded")
	}
}

func TestRegistry_LeaveDissolvesRoom(t *testing.T) {
	reg := NewRegistry()
	host := testParticipant("host")
	guest := testParticipant("guest")
	reg.Create("room1", host)
	reg.Join("room1", guest)

	other, ok := reg.Leave(host)
	if !ok || other != guest {
		t.Fatalf("leave: other=%v ok=%v", other, ok)
	}

	// The id behaves as if it never existed.
	if reg.InUse("room1") {
		t.Fatalf("room still in use after leave")
	}
	if _, outcome := reg.Join("room1", testParticipant("x")); outcome != OutcomeEmpty {
		t.Fatalf("join after dissolve: want Empty")
	}
	if !reg.Create("room1", testParticipant("y")) {
		t.Fatalf("id not reusable after dissolve")
	}

	// The remaining occupant is gone too.
	if _, ok := reg.Leave(guest); ok {
		t.Fatalf("guest still registered after room dissolved")
	}
}

func TestRegistry_LeaveAloneHasNoOther(t *testing.T) {
	reg := NewRegistry()
	host := testParticipant("host")
	reg.Create("room1", host)

	other, ok := reg.Leave(host)
	if !ok || other != nil {
		t.Fatalf("leave alone: other=%v ok=%v", other, ok)
	}
}

func TestRegistry_ConcurrentJoinsSeatExactlyOne(t *testing.T) {
	reg := NewRegistry()
	reg.Create("room1", testParticipant("host"))

	const racers = 32
	var wg sync.WaitGroup
	outcomes := make([]Outcome, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i] = reg.Join("room1", testParticipant("racer"))
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, o := range outcomes {
		if o == OutcomeOK {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("got %d successful joins, want exactly 1", okCount)
	}
}
