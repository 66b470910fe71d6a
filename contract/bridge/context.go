package bridge

import "context"

// Context is re-exported for convenience in handler signatures.
type Context = context.Context

// HeaderPropagator abstracts injecting tracing context into transport headers.
// Implementations may bridge to OpenTelemetry or any other propagation standard.
// Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// NopHeaderPropagator is a no-op implementation useful for tests or when tracing is disabled.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}

// HeaderExtractor is implemented by propagators that can restore context from
// inbound transport headers. Inbound pumps use it when the adapter's propagator has it.
type HeaderExtractor interface {
	Extract(ctx context.Context, headers map[string]string) context.Context
}
