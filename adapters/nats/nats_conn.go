package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
)

// Config describes a NATS connection owned by the adapter.
type Config struct {
	// URL may list several servers separated by commas.
	URL           string
	Name          string
	Subject       string
	ConnTimeout   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
	// SkipFlush publishes without waiting for the server round trip.
	SkipFlush bool
	Logger    *slog.Logger
}

// conn adapts *nats.Conn to Client and Subscriber.
type conn struct {
	nc        *nats.Conn
	skipFlush bool
}

func (c conn) Publish(subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data

	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	if c.skipFlush {
		return nil
	}

	return c.nc.Flush()
}

func (c conn) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) { fn(m.Data, flatten(m.Header)) })
	if err != nil {
		return nil, err
	}

	return sub.Unsubscribe, nil
}

// flatten keeps the first value of every header key.
func flatten(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}

	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	return out
}

func connOptions(cfg Config) []nats.Option {
	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	if log := cfg.Logger; log != nil {
		opts = append(opts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
			}),
		)
	}

	return opts
}

// NewWithNATS dials NATS and returns an Adapter plus a cleanup that drains the connection.
// The adapter's client also implements Subscriber, so Listen works on it.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("nats connect: %w", berr.ErrTransportNotConfigured)
	}

	nc, err := nats.Connect(cfg.URL, connOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", errors.Join(berr.ErrTransportNotConfigured, err))
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // drain is best effort during shutdown
		}
	}

	return New(conn{nc: nc, skipFlush: cfg.SkipFlush}, cfg.Subject), cleanup, nil
}
