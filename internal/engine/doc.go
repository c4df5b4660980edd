// Package engine drives one side of a two-party call: it reacts to
// rendezvous events (ready/full/empty/end) and relayed signaling payloads,
// moving an explicit state machine through
//
//	Idle -> AwaitingPeer -> Negotiating -> Connected -> Ended -> Idle
//
// The initiator (room creator) produces offers; the joiner answers. After the
// first round only the initiator renegotiates, so simultaneous offers cannot
// collide. Remote candidates arriving before the remote description are
// queued and flushed once it is set.
package engine
