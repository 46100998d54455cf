// Package transport abstracts how federation messages move between nodes,
// keeping the protocol logic transport-agnostic. The in-process bus serves
// local simulation and tests; the UDP transport speaks broadcast datagrams
// on a real LAN.
package transport

import (
	"context"
	"time"
)

// Handler answers one incoming payload. Returning nil means no reply,
// which the datagram model treats as a silent drop.
type Handler func(from string, payload []byte) []byte

// Response is one reply gathered during a broadcast listen window.
type Response struct {
	From    string
	Payload []byte
}

// Transport moves opaque payloads between nodes.
type Transport interface {
	// Broadcast sends payload to all reachable peers and returns every
	// reply that arrived before the listen window closed. Closing the
	// window is normal termination, not an error.
	Broadcast(ctx context.Context, payload []byte, window time.Duration) ([]Response, error)

	// Send delivers payload to one peer and waits up to timeout for its
	// reply.
	Send(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error)

	// SetHandler installs the responder invoked for each incoming payload.
	SetHandler(h Handler)

	// Addr is the address peers can reach this transport at.
	Addr() string

	Close() error
}
