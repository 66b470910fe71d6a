package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/envelope"
)

// Bridge routes events between application handlers and a host transport by channel name.
// It owns its listener registry, so several bridges can coexist in one process.
//
// Bridge is concurrency-safe and contains no global state.
type Bridge struct {
	mu sync.RWMutex

	handlers map[string][]cbridge.Handler
	closed   bool

	// handler middleware executed in registration order
	mw []cbridge.HandlerMiddleware

	poster   cbridge.Poster
	codec    envelope.Codec
	observer cbridge.Observer
	logger   *slog.Logger
}

// Ensure Bridge implements the contract.
var _ cbridge.Bridge = (*Bridge)(nil)

// Option configures a Bridge instance.
type Option func(*Bridge)

// WithCodec replaces the default encoding/json envelope codec.
func WithCodec(c envelope.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithMiddleware registers handler middleware. The first registered runs outermost.
func WithMiddleware(mw ...cbridge.HandlerMiddleware) Option {
	return func(b *Bridge) { b.mw = append(b.mw, mw...) }
}

// WithObserver sets the observer notified after every emit and delivery.
func WithObserver(o cbridge.Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

// New constructs a Bridge posting through poster. Both poster and logger may be nil;
// a nil poster makes Emit fail with ErrTransportNotConfigured.
func New(poster cbridge.Poster, logger *slog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		handlers: make(map[string][]cbridge.Handler),
		poster:   poster,
		codec:    envelope.JSON,
		observer: cbridge.NopObserver{},
		logger:   logger,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// On appends h to the handlers of channel. The same handler may be registered
// more than once and then runs once per registration.
func (b *Bridge) On(channel string, h cbridge.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[channel] = append(b.handlers[channel], h)
}

// OnFunc registers a callback that only takes the payload.
func (b *Bridge) OnFunc(channel string, fn func(payload any)) {
	b.On(channel, func(_ context.Context, payload any) error {
		fn(payload)
		return nil
	})
}

// Emit encodes {channel, payload} and hands the text to the poster.
// An unencodable payload fails with ErrEncoding and nothing is posted.
func (b *Bridge) Emit(ctx context.Context, channel string, payload any) error {
	err := b.emit(ctx, channel, payload)
	b.observer.Emitted(channel, err)

	return err
}

func (b *Bridge) emit(ctx context.Context, channel string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return fmt.Errorf("emit %s: %w", channel, berr.ErrBridgeClosed)
	}

	if b.poster == nil {
		return fmt.Errorf("emit %s: %w", channel, berr.ErrTransportNotConfigured)
	}

	text, err := envelope.Encode(b.codec, channel, payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", channel, err)
	}

	if err := b.poster.PostMessage(ctx, string(text)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("emit %s post: %w", channel, errors.Join(berr.ErrPostFailed, err))
	}

	return nil
}

// DeliverInbound decodes raw envelope text once and dispatches it to the channel's handlers.
// Decoding failures return ErrDecoding without invoking any handler.
func (b *Bridge) DeliverInbound(ctx context.Context, raw []byte) error {
	env, err := envelope.Decode(b.codec, raw)
	if err != nil {
		b.observer.Delivered("", 0, err)
		return fmt.Errorf("deliver: %w", err)
	}

	return b.Deliver(ctx, env)
}

// DeliverString is DeliverInbound for hosts that hold the envelope as text.
func (b *Bridge) DeliverString(ctx context.Context, text string) error {
	return b.DeliverInbound(ctx, []byte(text))
}

// Deliver dispatches an already decoded envelope. Every handler registered for the
// channel when dispatch starts runs once, in registration order, even if an earlier
// one fails or panics. Handler errors are aggregated with errors.Join and returned.
func (b *Bridge) Deliver(ctx context.Context, env cbridge.Envelope) error {
	b.mu.RLock()
	closed := b.closed
	entries := slices.Clone(b.handlers[env.Channel])
	b.mu.RUnlock()

	if closed {
		err := fmt.Errorf("deliver %s: %w", env.Channel, berr.ErrBridgeClosed)
		b.observer.Delivered(env.Channel, 0, err)

		return err
	}

	if len(entries) == 0 {
		b.observer.Delivered(env.Channel, 0, nil)
		return nil
	}

	var errs []error

	for i, h := range entries {
		if err := b.invoke(ctx, env, i, h); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	b.observer.Delivered(env.Channel, len(entries), err)

	return err
}

func (b *Bridge) invoke(ctx context.Context, env cbridge.Envelope, index int, h cbridge.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver %s handler %d: %w", env.Channel, index,
				errors.Join(berr.ErrHandlerPanicked, fmt.Errorf("panic: %v", r)))
			b.logError(ctx, "handler panicked", env.Channel, index, err)
		}
	}()

	final := h
	for i := len(b.mw) - 1; i >= 0; i-- {
		final = b.mw[i](env.Channel, final)
	}

	if herr := final(ctx, env.Payload); herr != nil {
		err = fmt.Errorf("deliver %s handler %d: %w", env.Channel, index, errors.Join(berr.ErrHandlerFailed, herr))
		b.logError(ctx, "handler failed", env.Channel, index, err)
	}

	return err
}

func (b *Bridge) logError(ctx context.Context, msg, channel string, index int, err error) {
	if b.logger == nil {
		return
	}

	b.logger.ErrorContext(ctx, msg, "channel", channel, "handler", index, "err", err)
}

// Channels lists the channels that have at least one handler, sorted.
func (b *Bridge) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.handlers))
	for ch := range b.handlers {
		out = append(out, ch)
	}

	sort.Strings(out)

	return out
}

// HandlerCount reports how many handlers are registered for channel.
func (b *Bridge) HandlerCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[channel])
}

// Close marks the bridge closed. Later Emit and delivery calls fail with ErrBridgeClosed.
// Closing twice is a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return nil
}
