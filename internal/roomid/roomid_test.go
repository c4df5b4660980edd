package roomid

import (
	"bytes"
	"testing"
)

func TestNew_WellFormed(t *testing.T) {
	id, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !Valid(id) {
		t.Fatalf("generated id %q is not valid", id)
	}
}

func TestNew_AvoidsInUseIDs(t *testing.T) {
	var first string
	calls := 0
	id, err := New(func(candidate string) bool {
		calls++
		if calls == 1 {
			first = candidate
			return true
		}
		return false
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if id == first {
		t.Fatalf("returned an id reported as in use: %q", id)
	}
	if calls < 2 {
		t.Fatalf("expected a retry, got %d calls", calls)
	}
}

func TestGenerate_RejectsBiasedBytes(t *testing.T) {
	// Bytes at or above the rejection limit are discarded; folding them back
	// modulo the alphabet would overweight its first characters.
	feed := []byte{255, 254, 253, 252, 251, 250, 249, 248}
	for i := 0; i < 12; i++ {
		feed = append(feed, byte(i))
	}
	id, err := generateFrom(bytes.NewReader(feed))
	if err != nil {
		t.Fatalf("generateFrom: %v", err)
	}
	if want := "abcdefghij"; id != want {
		t.Fatalf("id = %q, want %q", id, want)
	}
}

func TestGenerate_ErrorFromShortReader(t *testing.T) {
	if _, err := generateFrom(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected an error from a short random source")
	}
}

func TestNew_SpaceExhausted(t *testing.T) {
	_, err := New(func(string) bool { return true })
	if err != ErrSpaceExhausted {
		t.Fatalf("expected ErrSpaceExhausted, got %v", err)
	}
}

func TestValid_Rejections(t *testing.T) {
	for _, s := range []string{"", "short", "exactly10!", "waytoolongforanid"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}
