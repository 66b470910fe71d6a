package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Concrete franz-go based constructors and wrappers.

type Config struct {
	Brokers      []string
	TLS          *tls.Config
	ClientID     string
	Topic        string
	InboundTopic string
	Group        string
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

type kgoFetcher struct{ cl *kgo.Client }

var errClientClosed = errors.New("kafka client closed")

func (f kgoFetcher) Poll(ctx context.Context) ([]Record, error) {
	fetches := f.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, errClientClosed
	}

	if errs := fetches.Errors(); len(errs) > 0 {
		fe := errs[0]
		return nil, fmt.Errorf("fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}

	var records []Record

	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, Record{Value: r.Value, Headers: recordHeaders(r.Headers)})
	})

	return records, nil
}

// recordHeaders keeps the last value of every header key.
func recordHeaders(hs []kgo.RecordHeader) map[string]string {
	if len(hs) == 0 {
		return nil
	}

	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}

	return out
}

func baseOpts(cfg Config) []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	return opts
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrTransportNotConfigured)
	}

	cl, err := kgo.NewClient(baseOpts(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrTransportNotConfigured, err)
	}

	return New(kgoWriter{cl: cl}, cfg.Topic), cl.Close, nil
}

// NewFetcherWithKgo builds a consuming client for cfg.InboundTopic, joining cfg.Group when set.
func NewFetcherWithKgo(cfg Config) (Fetcher, func(), error) {
	if len(cfg.Brokers) == 0 || cfg.InboundTopic == "" {
		return nil, nil, fmt.Errorf("%w: kafka brokers and inbound topic required", berr.ErrTransportNotConfigured)
	}

	opts := append(baseOpts(cfg), kgo.ConsumeTopics(cfg.InboundTopic))
	if cfg.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.Group))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrTransportNotConfigured, err)
	}

	return kgoFetcher{cl: cl}, cl.Close, nil
}
