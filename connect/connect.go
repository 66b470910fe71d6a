// Package connect builds a ready-to-use Bridge from a config.Config: it selects the
// codec, dials the configured transport, starts its inbound pump and optionally
// attaches the Prometheus observer.
package connect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/next-trace/scg-event-bridge/adapters/inmemory"
	kafkaad "github.com/next-trace/scg-event-bridge/adapters/kafka"
	natsad "github.com/next-trace/scg-event-bridge/adapters/nats"
	"github.com/next-trace/scg-event-bridge/adapters/otelprop"
	rabbitad "github.com/next-trace/scg-event-bridge/adapters/rabbitmq"
	"github.com/next-trace/scg-event-bridge/adapters/stdio"
	"github.com/next-trace/scg-event-bridge/config"
	"github.com/next-trace/scg-event-bridge/envelope"
	"github.com/next-trace/scg-event-bridge/eventbridge"
	"github.com/next-trace/scg-event-bridge/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientName identifies the bridge to brokers that accept a client name.
const ClientName = "eventbridge"

type options struct {
	stdin      io.Reader
	stdout     io.Writer
	registerer prometheus.Registerer
	bridgeOpts []eventbridge.Option
}

// Option customizes Open.
type Option func(*options)

// WithStdio replaces os.Stdin/os.Stdout for the stdio transport.
func WithStdio(r io.Reader, w io.Writer) Option {
	return func(o *options) {
		o.stdin = r
		o.stdout = w
	}
}

// WithRegisterer sets where metrics are registered when enabled. Default: prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithBridgeOptions passes extra options to eventbridge.New, applied after the config derived ones.
func WithBridgeOptions(opts ...eventbridge.Option) Option {
	return func(o *options) { o.bridgeOpts = append(o.bridgeOpts, opts...) }
}

// NewLogger builds a JSON logger on stderr at the configured level.
// stdout is left alone since the stdio transport owns it.
func NewLogger(cfg config.Config) *slog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Codec returns the envelope codec named by cfg.Codec.
func Codec(cfg config.Config) envelope.Codec {
	if strings.EqualFold(cfg.Codec, config.CodecSonic) {
		return envelope.Sonic
	}

	return envelope.JSON
}

// Open validates cfg and returns a Bridge bound to the configured transport plus a
// cleanup that stops inbound pumps, closes the bridge and releases the connection.
// A nil logger is replaced by NewLogger(cfg). Each call builds an independent bridge.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*eventbridge.Bridge, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	o := options{stdin: os.Stdin, stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if logger == nil {
		logger = NewLogger(cfg)
	}

	bopts := []eventbridge.Option{eventbridge.WithCodec(Codec(cfg))}

	if cfg.Metrics.Enabled {
		obs := metrics.New(o.registerer)
		if err := obs.Register(); err != nil {
			return nil, nil, fmt.Errorf("connect metrics: %w", err)
		}

		bopts = append(bopts, eventbridge.WithObserver(obs))
	}

	bopts = append(bopts, o.bridgeOpts...)

	pumpCtx, cancel := context.WithCancel(ctx)

	b, release, err := open(pumpCtx, cfg, logger, o, bopts)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	logger.InfoContext(ctx, "event bridge opened", "transport", cfg.Transport, "codec", cfg.Codec)

	var once sync.Once

	cleanup := func() {
		once.Do(func() {
			cancel()
			_ = b.Close()

			release()
		})
	}

	return b, cleanup, nil
}

func open(ctx context.Context, cfg config.Config, logger *slog.Logger, o options, bopts []eventbridge.Option) (*eventbridge.Bridge, func(), error) {
	switch strings.ToLower(cfg.Transport) {
	case config.TransportStdio:
		return openStdio(ctx, logger, o, bopts)
	case config.TransportNATS:
		return openNATS(cfg, logger, bopts)
	case config.TransportRabbitMQ:
		return openRabbitMQ(ctx, cfg, logger, bopts)
	case config.TransportKafka:
		return openKafka(ctx, cfg, logger, bopts)
	default:
		lb := inmemory.NewLoopback(nil, logger)
		b := eventbridge.New(lb, logger, bopts...)
		lb.Attach(b)

		return b, func() {}, nil
	}
}

func openStdio(ctx context.Context, logger *slog.Logger, o options, bopts []eventbridge.Option) (*eventbridge.Bridge, func(), error) {
	out := bufio.NewWriter(o.stdout)
	b := eventbridge.New(stdio.NewWriter(out), logger, bopts...)

	// the read side is not interruptible; the pump exits on EOF or on the next frame after cancel
	go func() {
		err := stdio.Pump(ctx, o.stdin, b, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "stdio pump stopped", "err", err)
		}
	}()

	return b, func() { _ = out.Flush() }, nil
}

func openNATS(cfg config.Config, logger *slog.Logger, bopts []eventbridge.Option) (*eventbridge.Bridge, func(), error) {
	ad, closeConn, err := natsad.NewWithNATS(natsad.Config{
		URL:     cfg.NATS.URL,
		Name:    ClientName,
		Subject: cfg.NATS.Subject,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	ad.Propagator = otelprop.New(nil)
	b := eventbridge.New(ad, logger, bopts...)

	unsubscribe, err := ad.Listen(cfg.NATS.InboundSubject, b, logger)
	if err != nil {
		closeConn()
		return nil, nil, fmt.Errorf("connect nats listen: %w", err)
	}

	return b, func() {
		_ = unsubscribe()

		closeConn()
	}, nil
}

func openRabbitMQ(ctx context.Context, cfg config.Config, logger *slog.Logger, bopts []eventbridge.Option) (*eventbridge.Bridge, func(), error) {
	ad, closeSession, err := rabbitad.NewWithAMQPConn(rabbitad.Config{
		URL:               cfg.RabbitMQ.URL,
		Exchange:          cfg.RabbitMQ.Exchange,
		RoutingKey:        cfg.RabbitMQ.RoutingKey,
		InboundRoutingKey: cfg.RabbitMQ.InboundRoutingKey,
		Queue:             cfg.RabbitMQ.Queue,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, err
	}

	ad.Propagator = otelprop.New(nil)
	b := eventbridge.New(ad, logger, bopts...)

	if cfg.RabbitMQ.InboundRoutingKey == "" {
		return b, closeSession, nil
	}

	stop := goPump(ctx, logger, "rabbitmq consumer stopped", func(ctx context.Context) error {
		return ad.Listen(ctx, b, logger)
	})

	return b, func() {
		closeSession()
		stop()
	}, nil
}

func openKafka(ctx context.Context, cfg config.Config, logger *slog.Logger, bopts []eventbridge.Option) (*eventbridge.Bridge, func(), error) {
	kcfg := kafkaad.Config{
		Brokers:      cfg.Kafka.Brokers,
		ClientID:     ClientName,
		Topic:        cfg.Kafka.Topic,
		InboundTopic: cfg.Kafka.InboundTopic,
		Group:        cfg.Kafka.Group,
	}

	ad, closeWriter, err := kafkaad.NewWithKgo(kcfg)
	if err != nil {
		return nil, nil, err
	}

	ad.Propagator = otelprop.New(nil)
	b := eventbridge.New(ad, logger, bopts...)

	if kcfg.InboundTopic == "" {
		return b, closeWriter, nil
	}

	fetcher, closeFetcher, err := kafkaad.NewFetcherWithKgo(kcfg)
	if err != nil {
		closeWriter()
		return nil, nil, err
	}

	stop := goPump(ctx, logger, "kafka consumer stopped", func(ctx context.Context) error {
		return ad.Listen(ctx, fetcher, b, logger)
	})

	return b, func() {
		stop()
		closeFetcher()
		closeWriter()
	}, nil
}

// goPump runs an inbound loop in the background and returns a func waiting for it.
// The loop must return once ctx is canceled.
func goPump(ctx context.Context, logger *slog.Logger, msg string, loop func(context.Context) error) func() {
	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, msg, "err", err)
		}
	}()

	return wg.Wait
}
