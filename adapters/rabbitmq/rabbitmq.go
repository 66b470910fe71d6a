package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/internal/ids"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the topic exchange outbound envelopes are published to.
	DefaultExchange = "eventbridge"
	// DefaultRoutingKey is used when no routing key is configured.
	DefaultRoutingKey = "eventbridge.out"
	// DefaultInboundRoutingKey is bound to the inbound queue.
	DefaultInboundRoutingKey = "eventbridge.in"
)

// PubMsg is one outbound AMQP publishing.
type PubMsg struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Delivery is one inbound AMQP message.
type Delivery struct {
	Body      []byte
	Headers   map[string]string
	MessageID string
}

// Consumer streams inbound deliveries to fn until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, fn func(Delivery)) error
}

type Adapter struct {
	Publisher  Publisher
	Consumer   Consumer // optional, required by Listen
	Exchange   string
	RoutingKey string
	Propagator cbridge.HeaderPropagator // optional, for context propagation into headers
}

var _ cbridge.Poster = (*Adapter)(nil)

func New(p Publisher, exchange, routingKey string) *Adapter {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	return &Adapter{Publisher: p, Exchange: exchange, RoutingKey: routingKey}
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, exchange, routingKey string, hp cbridge.HeaderPropagator) *Adapter {
	a := New(p, exchange, routingKey)
	a.Propagator = hp

	return a
}

func (a *Adapter) PostMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq post: %w", berr.ErrTransportNotConfigured)
	}

	hdrs := make(map[string]string, 2)
	// Inject tracing context via configured propagator (keeps adapter decoupled)
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	msg := PubMsg{
		Exchange:   a.Exchange,
		RoutingKey: a.RoutingKey,
		MessageID:  ids.New(),
		Body:       []byte(text),
		Headers:    hdrs,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq post publish %s: %w", a.RoutingKey, errors.Join(berr.ErrPostFailed, err))
	}

	return nil
}

func publishing(m PubMsg, mode uint8) amqp.Publishing {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return amqp.Publishing{
		DeliveryMode: mode,
		MessageId:    m.MessageID,
		Headers:      h,
		ContentType:  "application/json",
		Body:         m.Body,
	}
}

// Listen feeds every inbound delivery to in until ctx is done. Delivery errors are
// logged and skipped. When the Propagator is also a HeaderExtractor, trace context is
// restored from the message headers.
func (a *Adapter) Listen(ctx context.Context, in cbridge.Inbound, logger *slog.Logger) error {
	if a.Consumer == nil || in == nil {
		return fmt.Errorf("rabbitmq listen: %w", berr.ErrTransportNotConfigured)
	}

	extractor, _ := a.Propagator.(cbridge.HeaderExtractor)

	return a.Consumer.Consume(ctx, func(d Delivery) {
		dctx := ctx
		if extractor != nil && len(d.Headers) > 0 {
			dctx = extractor.Extract(ctx, d.Headers)
		}

		if err := in.DeliverInbound(dctx, d.Body); err != nil && logger != nil {
			logger.WarnContext(dctx, "rabbitmq inbound delivery failed", "message_id", d.MessageID, "err", err)
		}
	})
}
