package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeKind = "topic"
	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
)

// Config describes the AMQP session owned by NewWithAMQPConn.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	// InboundRoutingKey is bound to the inbound queue. Default: DefaultInboundRoutingKey.
	InboundRoutingKey string
	// Queue names the inbound queue; empty declares an exclusive server-named queue.
	Queue       string
	ConnTimeout time.Duration
	Logger      *slog.Logger
}

// session keeps one AMQP connection alive, redialing with jittered backoff.
// It implements Publisher and Consumer.
type session struct {
	cfg Config

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // closed while conn and ch are usable

	done chan struct{}
	once sync.Once
}

func newSession(cfg Config) *session {
	s := &session{
		cfg:   cfg,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()

	return s
}

// current waits until a connection is up and returns it.
func (s *session) current(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	for {
		s.mu.RLock()
		conn, ch, ready := s.conn, s.ch, s.ready
		s.mu.RUnlock()

		if ch != nil {
			return conn, ch, nil
		}

		select {
		case <-ready:
		case <-s.done:
			return nil, nil, fmt.Errorf("rabbitmq session: %w", berr.ErrBridgeClosed)
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (s *session) Publish(ctx context.Context, m PubMsg) error {
	_, ch, err := s.current(ctx)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, publishing(m, amqp.Transient))
}

// Consume declares and binds the inbound queue on every (re)connection and calls fn
// for each delivery until ctx is done or the session is closed.
func (s *session) Consume(ctx context.Context, fn func(Delivery)) error {
	for {
		conn, _, err := s.current(ctx)
		if err != nil {
			return err
		}

		if err := s.consumeOnce(ctx, conn, fn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logWarn("rabbitmq consume interrupted", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(minBackoff):
		}
	}
}

func (s *session) consumeOnce(ctx context.Context, conn *amqp.Connection, fn func(Delivery)) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	exclusive := s.cfg.Queue == ""

	q, err := ch.QueueDeclare(s.cfg.Queue, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, s.cfg.InboundRoutingKey, s.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", q.Name, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	for d := range deliveries {
		fn(Delivery{Body: d.Body, Headers: headerStrings(d.Headers), MessageID: d.MessageId})
	}

	return errors.New("delivery channel closed")
}

func (s *session) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(s.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-event-bridge"},
		Dial:       amqp.DefaultDial(s.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := s.openChannel(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return conn, ch, nil
}

// openChannel opens a publishing channel and makes sure the exchange exists.
func (s *session) openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(s.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (s *session) run() {
	backoff := minBackoff

	for {
		conn, ch, err := s.dial()
		if err != nil {
			s.logWarn("rabbitmq dial failed", err)

			if !s.sleep(jitter(backoff)) {
				return
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = minBackoff
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		s.setReady(conn, ch)

		reopen := func() (<-chan *amqp.Error, error) {
			next, err := s.openChannel(conn)
			if err != nil {
				return nil, err
			}

			notify := next.NotifyClose(make(chan *amqp.Error, 1))
			s.setReady(conn, next)

			return notify, nil
		}

		redial := s.watch(connClosed, chClosed, reopen)
		s.setUnready()

		_ = conn.Close()

		if !redial {
			return
		}
	}
}

// watch blocks while the connection is healthy. A channel-level close (the broker
// closes channels on exceptions such as a missing exchange) reopens the channel on the
// same connection. It reports true when the connection must be redialed and false once
// the session is closed.
func (s *session) watch(connClosed, chClosed <-chan *amqp.Error, reopen func() (<-chan *amqp.Error, error)) bool {
	for {
		select {
		case <-s.done:
			return false
		case amqpErr := <-connClosed:
			if amqpErr != nil {
				s.logWarn("rabbitmq connection lost", amqpErr)
			}

			return true
		case amqpErr := <-chClosed:
			if amqpErr != nil {
				s.logWarn("rabbitmq channel closed", amqpErr)
			}

			s.setUnready()

			next, err := reopen()
			if err != nil {
				s.logWarn("rabbitmq channel reopen failed", err)
				return true
			}

			chClosed = next
		}
	}
}

func (s *session) setReady(conn *amqp.Connection, ch *amqp.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn, s.ch = conn, ch
	close(s.ready)
}

// setUnready makes publishers wait for the next setReady.
func (s *session) setUnready() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return
	}

	s.conn, s.ch = nil, nil
	s.ready = make(chan struct{})
}

// sleep waits d and reports false when the session closed meanwhile.
func (s *session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}

func (s *session) logWarn(msg string, err error) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, "exchange", s.cfg.Exchange, "err", err)
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// jitter adds up to half of d, capped at maxBackoff.
func jitter(d time.Duration) time.Duration {
	return min(d+rand.N(d/2+1), maxBackoff) // #nosec G404 -- backoff jitter only
}

// headerStrings keeps the string-convertible AMQP header values.
func headerStrings(t amqp.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}

	out := make(map[string]string, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		}
	}

	return out
}

// NewWithAMQPConn starts a self-healing AMQP session that declares the topic exchange, and
// returns an Adapter publishing through it plus a cleanup. The session also serves as
// the Consumer for Adapter.Listen via Adapter.Consumer.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", berr.ErrTransportNotConfigured)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	if cfg.InboundRoutingKey == "" {
		cfg.InboundRoutingKey = DefaultInboundRoutingKey
	}

	s := newSession(cfg)
	ad := New(s, cfg.Exchange, cfg.RoutingKey)
	ad.Consumer = s

	return ad, s.close, nil
}
