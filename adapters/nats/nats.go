package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/internal/ids"
)

const (
	// DefaultSubject receives outbound envelopes when no subject is configured.
	DefaultSubject = "eventbridge.out"
	// DefaultInboundSubject is listened on for inbound envelopes when none is configured.
	DefaultInboundSubject = "eventbridge.in"

	contentType = "application/json"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Subscriber is implemented by clients that can also receive messages.
type Subscriber interface {
	// Subscribe calls fn with the body and headers of every message on subject until
	// unsubscribe is called.
	Subscribe(subject string, fn func(data []byte, headers map[string]string)) (unsubscribe func() error, err error)
}

// Adapter implements cbridge.Poster using an injected NATS-like Client.
type Adapter struct {
	Client     Client
	Subject    string
	Propagator cbridge.HeaderPropagator // optional, for context propagation into headers
}

// Ensure Adapter implements the contract.
var _ cbridge.Poster = (*Adapter)(nil)

// New creates a new NATS adapter publishing to subject (DefaultSubject when empty).
func New(c Client, subject string) *Adapter {
	if subject == "" {
		subject = DefaultSubject
	}

	return &Adapter{Client: c, Subject: subject}
}

// PostMessage publishes one envelope text with a message id header.
func (a *Adapter) PostMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats post: %w", berr.ErrTransportNotConfigured)
	}

	headers := map[string]string{
		ids.HeaderMessageID: ids.New(),
		"content-type":      contentType,
	}
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	if err := a.Client.Publish(a.Subject, []byte(text), headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats post publish %s: %w", a.Subject, errors.Join(berr.ErrPostFailed, err))
	}

	return nil
}

// Listen subscribes to subject (DefaultInboundSubject when empty) and hands every
// message body to in. Delivery errors are logged and do not end the subscription.
// When the Propagator is also a HeaderExtractor, trace context is restored from the
// message headers. The client must implement Subscriber.
func (a *Adapter) Listen(subject string, in cbridge.Inbound, logger *slog.Logger) (func() error, error) {
	sub, ok := a.Client.(Subscriber)
	if !ok || in == nil {
		return nil, fmt.Errorf("nats listen: %w", berr.ErrTransportNotConfigured)
	}

	if subject == "" {
		subject = DefaultInboundSubject
	}

	extractor, _ := a.Propagator.(cbridge.HeaderExtractor)

	return sub.Subscribe(subject, func(data []byte, headers map[string]string) {
		ctx := context.Background()
		if extractor != nil && len(headers) > 0 {
			ctx = extractor.Extract(ctx, headers)
		}

		if err := in.DeliverInbound(ctx, data); err != nil && logger != nil {
			logger.WarnContext(ctx, "nats inbound delivery failed",
				"subject", subject, "message_id", headers[ids.HeaderMessageID], "err", err)
		}
	})
}
