// Package turnrest mints short-lived TURN credentials in the coturn REST
// scheme, so the service can hand browsers working TURN servers without a
// shared static password.
//
// See https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest:
//
//	username   = <unix_expiry>:<label>
//	credential = base64(hmac_sha1(shared_secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL keeps credentials valid comfortably past the inactivity window
// of a call.
const DefaultTTL = time.Hour

// Credentials is one minted TURN login.
type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  time.Time
}

// Minter produces Credentials against a secret shared with the TURN server.
type Minter struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewMinter(secret string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, errors.New("turnrest: shared secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint issues credentials for the given label. A random label is chosen when
// it is empty, so callers need not invent one per request.
func (m *Minter) Mint(label string) (Credentials, error) {
	if strings.Contains(label, ":") {
		return Credentials{}, errors.New("turnrest: label must not contain ':'")
	}
	if label == "" {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return Credentials{}, fmt.Errorf("turnrest: %w", err)
		}
		label = hex.EncodeToString(b[:])
	}

	expiry := m.now().UTC().Add(m.ttl)
	username := fmt.Sprintf("%d:%s", expiry.Unix(), label)

	mac := hmac.New(sha1.New, m.secret)
	mac.Write([]byte(username))

	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiresAt:  expiry,
	}, nil
}
