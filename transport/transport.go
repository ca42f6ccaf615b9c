// Package transport defines the node core's view of its networking and
// timer dependencies. The core itself never dials sockets or starts
// timers directly; it calls through these interfaces so the algorithmic
// code can be exercised against an in-memory double.
package transport

import (
	"time"

	"github.com/nkoteskey/routing/message"
	"github.com/nkoteskey/routing/section"
)

// Transport is the outbound networking surface the core uses: send a
// direct message to one peer, or disconnect from it. Inbound delivery
// (framed bytes plus sender address) is out of this interface's scope —
// callers feed received messages into the core through its own message
// handling entry points.
type Transport interface {
	SendDirectMessage(addr section.Addr, variant message.Variant) error
	Disconnect(addr section.Addr) error
}

// Timer is a write-only scheduler: Schedule arranges for token to be
// delivered back to the core's timeout handler once d has elapsed, and
// returns a token identifying that specific timeout.
type Timer interface {
	Schedule(d time.Duration) uint64
}
