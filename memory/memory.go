package memory

import (
	"github.com/next-trace/scg-event-bridge/adapters/inmemory"
	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	"github.com/next-trace/scg-event-bridge/eventbridge"
)

// New constructs a bridge whose outbound envelopes are recorded by an in-memory
// poster, and returns it with the poster and a cleanup that closes the bridge.
func New() (*eventbridge.Bridge, *inmemory.Poster, func()) {
	p := &inmemory.Poster{}
	b := eventbridge.New(p, nil)
	cleanup := func() { _ = b.Close() }

	return b, p, cleanup
}

// NewPair connects two bridges so each one's Emit is delivered to the other,
// as a host does between an application and its UI process.
func NewPair() (cbridge.Bridge, cbridge.Bridge, func()) { //nolint:ireturn
	toB := inmemory.NewLoopback(nil, nil)
	toA := inmemory.NewLoopback(nil, nil)

	a := eventbridge.New(toB, nil)
	b := eventbridge.New(toA, nil)

	toB.Attach(b)
	toA.Attach(a)

	cleanup := func() {
		_ = a.Close()
		_ = b.Close()
	}

	return a, b, cleanup
}
