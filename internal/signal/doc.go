// Package signal models the wire protocol between call participants and the
// rendezvous service.
//
// Two layers are defined. Envelopes are what the service itself understands
// (create/join/message/end plus the service's replies). Payloads are the
// signaling messages carried inside "message" envelopes; the service forwards
// them verbatim and only the negotiation engine on each side interprets them.
package signal
