package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-event-bridge/adapters/kafka"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/internal/ids"
)

type fakeWriter struct {
	calls []struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}
	err error
}

func (f *fakeWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.calls = append(f.calls, struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}{topic, key, value, headers})

	return f.err
}

// fakeFetcher serves batches, then cancels the consume context.
type fakeFetcher struct {
	batches [][]kafka.Record
	cancel  context.CancelFunc
	err     error
}

func (f *fakeFetcher) Poll(ctx context.Context) ([]kafka.Record, error) {
	if f.err != nil {
		return nil, f.err
	}

	if len(f.batches) == 0 {
		f.cancel()
		<-ctx.Done()

		return nil, ctx.Err()
	}

	b := f.batches[0]
	f.batches = f.batches[1:]

	return b, nil
}

type traceKey struct{}

type recordingInbound struct {
	raws    []string
	parents []any
}

func (r *recordingInbound) DeliverInbound(ctx context.Context, raw []byte) error {
	r.raws = append(r.raws, string(raw))
	r.parents = append(r.parents, ctx.Value(traceKey{}))
	if string(raw) == "bad" {
		return berr.ErrDecoding
	}

	return nil
}

func TestKafka_PostMessage(t *testing.T) {
	fw := &fakeWriter{}
	ad := kafka.New(fw, "")

	if err := ad.PostMessage(t.Context(), `{"channel":"a","payload":1}`); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(fw.calls) != 1 {
		t.Fatalf("want 1, got %d", len(fw.calls))
	}

	c := fw.calls[0]
	if c.topic != kafka.DefaultTopic {
		t.Fatalf("topic: %s", c.topic)
	}

	if string(c.value) != `{"channel":"a","payload":1}` {
		t.Fatalf("value: %s", c.value)
	}

	if string(c.key) != c.headers[ids.HeaderMessageID] || len(c.key) == 0 {
		t.Fatalf("key %q must equal message id header %+v", c.key, c.headers)
	}
}

func TestKafka_NilWriterError(t *testing.T) {
	ad := kafka.New(nil, "t")
	if err := ad.PostMessage(t.Context(), "x"); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestKafka_WriteErrors(t *testing.T) {
	ad := kafka.New(&fakeWriter{err: errors.New("broker down")}, "t")
	if err := ad.PostMessage(t.Context(), "x"); !errors.Is(err, berr.ErrPostFailed) {
		t.Fatalf("want ErrPostFailed, got %v", err)
	}

	ad = kafka.New(&fakeWriter{err: context.DeadlineExceeded}, "t")
	if err := ad.PostMessage(t.Context(), "x"); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, berr.ErrPostFailed) {
		t.Fatalf("want bare DeadlineExceeded, got %v", err)
	}
}

func TestKafka_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	f := &fakeFetcher{
		batches: [][]kafka.Record{
			{{Value: []byte("one")}, {Value: []byte("bad")}},
			{{Value: []byte("three")}},
		},
		cancel: cancel,
	}
	in := &recordingInbound{}

	err := kafka.Consume(ctx, f, in, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if len(in.raws) != 3 || in.raws[2] != "three" {
		t.Fatalf("raws=%v", in.raws)
	}
}

func TestKafka_ConsumePollError(t *testing.T) {
	boom := errors.New("fetch failed")

	err := kafka.Consume(t.Context(), &fakeFetcher{err: boom}, &recordingInbound{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if err := kafka.Consume(t.Context(), nil, &recordingInbound{}, nil); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestNewWithKgo_RequiresBrokers(t *testing.T) {
	if _, _, err := kafka.NewWithKgo(kafka.Config{}); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}

	if _, _, err := kafka.NewFetcherWithKgo(kafka.Config{Brokers: []string{"localhost:9092"}}); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

type extractingPropagator struct{}

func (extractingPropagator) Inject(ctx context.Context, headers map[string]string) {
	headers["traceparent"] = "00-abc-def-01"
}

func (extractingPropagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, traceKey{}, headers["traceparent"])
}

func TestKafka_ListenRestoresTraceContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	f := &fakeFetcher{
		batches: [][]kafka.Record{{
			{Value: []byte("traced"), Headers: map[string]string{"traceparent": "00-1-2-01"}},
			{Value: []byte("plain")},
		}},
		cancel: cancel,
	}
	in := &recordingInbound{}

	ad := kafka.New(&fakeWriter{}, "")
	ad.Propagator = extractingPropagator{}

	if err := ad.Listen(ctx, f, in, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if len(in.parents) != 2 || in.parents[0] != "00-1-2-01" || in.parents[1] != nil {
		t.Fatalf("parents=%v", in.parents)
	}

	// without an extracting propagator the context is passed through untouched
	ctx2, cancel2 := context.WithCancel(t.Context())
	defer cancel2()

	in2 := &recordingInbound{}
	f2 := &fakeFetcher{
		batches: [][]kafka.Record{{{Value: []byte("x"), Headers: map[string]string{"traceparent": "00-1-2-01"}}}},
		cancel:  cancel2,
	}

	_ = kafka.Consume(ctx2, f2, in2, nil)

	if len(in2.parents) != 1 || in2.parents[0] != nil {
		t.Fatalf("parents=%v", in2.parents)
	}
}
