package eventbridge

import (
	"context"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
)

// Emitter is an outbound-only facade over Bridge.
// Hand it to code that may publish but must not register handlers.
type Emitter struct{ b *Bridge }

// NewEmitter constructs an Emitter over a Bridge.
func NewEmitter(b *Bridge) *Emitter { return &Emitter{b: b} }

// Emit emits using the underlying Bridge.
func (e *Emitter) Emit(ctx context.Context, channel string, payload any) error {
	return e.b.Emit(ctx, channel, payload)
}

// Registrar is a registration-only facade over Bridge.
type Registrar struct{ b *Bridge }

// NewRegistrar constructs a Registrar over a Bridge.
func NewRegistrar(b *Bridge) *Registrar { return &Registrar{b: b} }

// On registers a handler using the underlying Bridge.
func (r *Registrar) On(channel string, h cbridge.Handler) { r.b.On(channel, h) }
