package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepaliveFiresOnInactivity(t *testing.T) {
	var fired atomic.Int32
	k := NewKeepalive(30*time.Millisecond, func() { fired.Add(1) })
	defer k.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("keepalive never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeepaliveResetDefersExpiry(t *testing.T) {
	var fired atomic.Int32
	k := NewKeepalive(80*time.Millisecond, func() { fired.Add(1) })
	defer k.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		k.Reset()
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("keepalive fired %d times despite steady resets", got)
	}
}

func TestKeepaliveKeepsRunningAfterExpiry(t *testing.T) {
	var fired atomic.Int32
	k := NewKeepalive(20*time.Millisecond, func() { fired.Add(1) })
	defer k.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("keepalive fired %d times, want it rearmed after expiry", fired.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeepaliveStopIsIdempotent(t *testing.T) {
	var fired atomic.Int32
	k := NewKeepalive(20*time.Millisecond, func() { fired.Add(1) })
	k.Stop()
	k.Stop()
	k.Reset()

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("keepalive fired %d times after Stop", got)
	}
}
