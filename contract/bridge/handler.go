package bridge

import "context"

// Handler receives the decoded payload of one inbound delivery.
// All handlers of a delivery share the same payload value; a handler that
// mutates a map or slice payload is visible to the handlers after it.
type Handler func(ctx context.Context, payload any) error

// HandlerMiddleware wraps handler execution. Middlewares run in registration order.
type HandlerMiddleware func(channel string, next Handler) Handler
