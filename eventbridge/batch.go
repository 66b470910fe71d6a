package eventbridge

import (
	"context"
	"errors"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
)

// revive:disable:max-public-structs
// BatchOptions controls EmitBatch behavior.
// OnProgress is called after each envelope is emitted (success or failure) with done and total.
// OnError is called when an emit fails with its index, the envelope, and the error.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(index int, env cbridge.Envelope, err error)
}

// revive:enable:max-public-structs

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the error callback.
func WithBatchOnError(fn func(index int, env cbridge.Envelope, err error)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// EmitBatch emits the envelopes in order. A failing envelope does not stop the rest.
// It respects context cancellation, reports progress, and aggregates errors.
func (b *Bridge) EmitBatch(ctx context.Context, envs []cbridge.Envelope, opts ...BatchOpt) error {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	total := len(envs)

	var errs []error

	for i, env := range envs {
		if err := ctx.Err(); err != nil { // canceled or deadline exceeded
			return errors.Join(append(errs, err)...)
		}

		if err := b.Emit(ctx, env.Channel, env.Payload); err != nil {
			if o.OnError != nil {
				o.OnError(i, env, err)
			}

			errs = append(errs, err)
		}

		if o.OnProgress != nil {
			o.OnProgress(i+1, total)
		}
	}

	return errors.Join(errs...)
}

// EmitChain emits the envelopes in order and stops on the first error.
func (b *Bridge) EmitChain(ctx context.Context, envs ...cbridge.Envelope) error {
	for _, env := range envs {
		if err := b.Emit(ctx, env.Channel, env.Payload); err != nil {
			return err
		}
	}

	return nil
}
