// Package otelprop implements bridge.HeaderPropagator with OpenTelemetry text map propagators.
package otelprop

import (
	"context"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator injects trace context into transport headers.
type Propagator struct {
	p propagation.TextMapPropagator
}

var _ cbridge.HeaderPropagator = Propagator{}

// New wraps p. A nil p selects W3C trace context plus baggage.
func New(p propagation.TextMapPropagator) Propagator {
	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}

	return Propagator{p: p}
}

// FromGlobal uses the process-wide propagator registered with otel.SetTextMapPropagator.
func FromGlobal() Propagator { return Propagator{p: otel.GetTextMapPropagator()} }

func (p Propagator) Inject(ctx context.Context, headers map[string]string) {
	p.p.Inject(ctx, propagation.MapCarrier(headers))
}

// Extract returns ctx carrying the trace context found in headers.
func (p Propagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	return p.p.Extract(ctx, propagation.MapCarrier(headers))
}
