package bridge

import "context"

// Bridge is the minimal, transport-agnostic contract of an event bridge.
//
// Application code registers handlers with On and emits with Emit; the host
// delivers inbound envelopes through DeliverInbound. Concrete bridges live in the
// eventbridge package; this interface is for consumers that only want contracts.
type Bridge interface {
	Inbound

	// Register
	On(channel string, h Handler)

	// Outbound
	Emit(ctx context.Context, channel string, payload any) error

	// Lifecycle
	Close() error
}
