package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/internal/ids"
)

// DefaultTopic receives outbound envelopes when no topic is configured.
const DefaultTopic = "eventbridge.out"

// Writer is a minimal Kafka-like writer interface.
// Users can adapt any client to this; NewWithKgo uses franz-go.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Record is one consumed Kafka record.
type Record struct {
	Value   []byte
	Headers map[string]string
}

// Fetcher returns the next batch of records. It blocks until records arrive or ctx is done.
type Fetcher interface {
	Poll(ctx context.Context) ([]Record, error)
}

// Adapter implements cbridge.Poster using an injected Writer.
type Adapter struct {
	Writer     Writer
	Topic      string
	Propagator cbridge.HeaderPropagator // optional
}

var _ cbridge.Poster = (*Adapter)(nil)

// New creates a new Kafka adapter writing to topic (DefaultTopic when empty).
func New(w Writer, topic string) *Adapter {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Adapter{Writer: w, Topic: topic}
}

func (a *Adapter) PostMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka post: %w", berr.ErrTransportNotConfigured)
	}

	id := ids.New()
	headers := map[string]string{ids.HeaderMessageID: id}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	if err := a.Writer.Write(ctx, a.Topic, []byte(id), []byte(text), headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka post write %s: %w", a.Topic, errors.Join(berr.ErrPostFailed, err))
	}

	return nil
}

// Consume polls f until ctx is done and hands every record value to in.
// Delivery errors are logged and skipped; a poll error ends the loop.
func Consume(ctx context.Context, f Fetcher, in cbridge.Inbound, logger *slog.Logger) error {
	return consume(ctx, f, in, nil, logger)
}

// Listen is Consume restoring trace context from record headers when the adapter's
// Propagator is also a HeaderExtractor.
func (a *Adapter) Listen(ctx context.Context, f Fetcher, in cbridge.Inbound, logger *slog.Logger) error {
	extractor, _ := a.Propagator.(cbridge.HeaderExtractor)

	return consume(ctx, f, in, extractor, logger)
}

func consume(ctx context.Context, f Fetcher, in cbridge.Inbound, ex cbridge.HeaderExtractor, logger *slog.Logger) error {
	if f == nil || in == nil {
		return fmt.Errorf("kafka consume: %w", berr.ErrTransportNotConfigured)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := f.Poll(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return fmt.Errorf("kafka consume poll: %w", err)
		}

		for _, r := range records {
			rctx := ctx
			if ex != nil && len(r.Headers) > 0 {
				rctx = ex.Extract(ctx, r.Headers)
			}

			if err := in.DeliverInbound(rctx, r.Value); err != nil && logger != nil {
				logger.WarnContext(rctx, "kafka inbound delivery failed",
					"message_id", r.Headers[ids.HeaderMessageID], "err", err)
			}
		}
	}
}
