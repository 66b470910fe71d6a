package nats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-event-bridge/adapters/nats"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/next-trace/scg-event-bridge/internal/ids"
)

type fakeClient struct {
	calls []struct {
		subject string
		data    []byte
		headers map[string]string
	}
	err error
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	f.calls = append(f.calls, struct {
		subject string
		data    []byte
		headers map[string]string
	}{subject, data, headers})

	return f.err
}

// fakeSubClient also receives.
type fakeSubClient struct {
	fakeClient
	subject      string
	fn           func([]byte, map[string]string)
	unsubscribed bool
}

func (f *fakeSubClient) Subscribe(subject string, fn func(data []byte, headers map[string]string)) (func() error, error) {
	f.subject = subject
	f.fn = fn

	return func() error { f.unsubscribed = true; return nil }, nil
}

type recordingInbound struct {
	raws    []string
	parents []any
	err     error
}

func (r *recordingInbound) DeliverInbound(ctx context.Context, raw []byte) error {
	r.raws = append(r.raws, string(raw))
	r.parents = append(r.parents, ctx.Value(traceKey{}))

	return r.err
}

type traceKey struct{}

type tracePropagator struct{}

func (tracePropagator) Inject(ctx context.Context, headers map[string]string) {
	headers["traceparent"] = "00-abc-def-01"
}

func (tracePropagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, traceKey{}, headers["traceparent"])
}

func TestNATS_PostMessage(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc, "")
	ad.Propagator = tracePropagator{}

	if err := ad.PostMessage(t.Context(), `{"channel":"a","payload":1}`); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fc.calls))
	}

	c := fc.calls[0]
	if c.subject != nats.DefaultSubject {
		t.Fatalf("subject mismatch: %s", c.subject)
	}

	if string(c.data) != `{"channel":"a","payload":1}` {
		t.Fatalf("data=%s", c.data)
	}

	if len(c.headers[ids.HeaderMessageID]) == 0 || c.headers["traceparent"] == "" {
		t.Fatalf("headers missing: %+v", c.headers)
	}

	ad2 := nats.New(fc, "windows.7.out")
	if err := ad2.PostMessage(t.Context(), "x"); err != nil {
		t.Fatalf("post: %v", err)
	}

	if fc.calls[1].subject != "windows.7.out" {
		t.Fatalf("subject=%s", fc.calls[1].subject)
	}
}

func TestNATS_NilClientError(t *testing.T) {
	ad := nats.New(nil, "s")

	if err := ad.PostMessage(t.Context(), "x"); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestNATS_Publish_ErrorWrapping_And_ContextCancel(t *testing.T) {
	// client returns generic error -> should wrap
	fc := &fakeClient{err: errors.New("boom")}
	ad := nats.New(fc, "s")

	if err := ad.PostMessage(t.Context(), "x"); !errors.Is(err, berr.ErrPostFailed) {
		t.Fatalf("want ErrPostFailed, got %v", err)
	}

	// client returns context.Canceled -> propagate as-is
	ad2 := nats.New(&fakeClient{err: context.Canceled}, "s")

	err := ad2.PostMessage(t.Context(), "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	// canceled context short-circuits
	fc3 := &fakeClient{}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := nats.New(fc3, "s").PostMessage(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if len(fc3.calls) != 0 {
		t.Fatalf("published after cancel")
	}
}

func TestNATS_Listen(t *testing.T) {
	// publisher-only client cannot listen
	if _, err := nats.New(&fakeClient{}, "").Listen("", &recordingInbound{}, nil); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}

	fc := &fakeSubClient{}
	in := &recordingInbound{err: errors.New("decode failed")}

	unsub, err := nats.New(fc, "").Listen("", in, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	if fc.subject != nats.DefaultInboundSubject {
		t.Fatalf("subject=%s", fc.subject)
	}

	// delivery errors do not stop the subscription
	fc.fn([]byte("one"), nil)
	fc.fn([]byte("two"), map[string]string{"traceparent": "ignored"})

	if len(in.raws) != 2 || in.raws[1] != "two" {
		t.Fatalf("raws=%v", in.raws)
	}

	if err := unsub(); err != nil || !fc.unsubscribed {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestNATS_ListenExtractsTraceContext(t *testing.T) {
	fc := &fakeSubClient{}
	in := &recordingInbound{}

	ad := nats.New(fc, "")
	ad.Propagator = tracePropagator{}

	if _, err := ad.Listen("app.in", in, nil); err != nil {
		t.Fatalf("listen: %v", err)
	}

	fc.fn([]byte("a"), map[string]string{"traceparent": "00-1-2-01"})
	fc.fn([]byte("b"), nil)

	if in.parents[0] != "00-1-2-01" || in.parents[1] != nil {
		t.Fatalf("parents=%v", in.parents)
	}
}
