// Package roomid generates the short identifiers guests type to join a call.
package roomid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// Length matches what fits comfortably in a shared URL.
	Length = 10

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxAttempts bounds the retry loop when freshly generated ids collide
	// with active rooms. With a 62^10 space this only trips if the in-use
	// check itself is broken.
	maxAttempts = 32
)

// ErrSpaceExhausted is returned when every attempted id collided with an
// active room.
var ErrSpaceExhausted = errors.New("roomid: could not generate an unused id")

// New returns a fresh id that inUse reports as available. inUse may be nil,
// in which case the first generated id is returned.
func New(inUse func(string) bool) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		id, err := generate()
		if err != nil {
			return "", err
		}
		if inUse == nil || !inUse(id) {
			return id, nil
		}
	}
	return "", ErrSpaceExhausted
}

func generate() (string, error) {
	return generateFrom(rand.Reader)
}

// generateFrom draws id characters from r with rejection sampling: bytes at
// or above the largest multiple of len(alphabet) are discarded, so every
// character is equally likely.
func generateFrom(r io.Reader) (string, error) {
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, Length)
	var buf [Length]byte
	for len(out) < Length {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("roomid: read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s is a well-formed room id. The rendezvous server
// accepts any non-empty room name from clients, so this is only used where
// an id is expected to have come from New.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
