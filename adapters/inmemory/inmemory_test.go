package inmemory_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/next-trace/scg-event-bridge/adapters/inmemory"
)

type recordingInbound struct {
	mu   sync.Mutex
	raws []string
	err  error
}

func (r *recordingInbound) DeliverInbound(ctx context.Context, raw []byte) error {
	r.mu.Lock()
	r.raws = append(r.raws, string(raw))
	r.mu.Unlock()

	return r.err
}

func TestInmemory_PostRecordings(t *testing.T) {
	p := &inmemory.Poster{}

	if err := p.PostMessage(t.Context(), `{"channel":"a","payload":1}`); err != nil {
		t.Fatalf("post: %v", err)
	}

	got := p.Posted()
	if len(got) != 1 || got[0] != `{"channel":"a","payload":1}` {
		t.Fatalf("posted=%v", got)
	}

	// returned slice is a copy
	got[0] = "mutated"
	if p.Posted()[0] == "mutated" {
		t.Fatalf("Posted must return a copy")
	}

	p.Reset()

	if n := len(p.Posted()); n != 0 {
		t.Fatalf("after reset: %d", n)
	}
}

func TestInmemory_ConcurrentSafety(t *testing.T) {
	p := &inmemory.Poster{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = p.PostMessage(t.Context(), "x")
		}()
	}

	wg.Wait()

	if len(p.Texts) != 50 {
		t.Fatalf("texts=%d", len(p.Texts))
	}
}

func TestLoopback_DeliversAndSwallowsReceiverErrors(t *testing.T) {
	var logs bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&logs, nil))

	// nothing attached: dropped
	l := inmemory.NewLoopback(nil, logger)
	if err := l.PostMessage(t.Context(), "x"); err != nil {
		t.Fatalf("unattached post: %v", err)
	}

	in := &recordingInbound{}
	l.Attach(in)

	if err := l.PostMessage(t.Context(), "y"); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(in.raws) != 1 || in.raws[0] != "y" {
		t.Fatalf("raws=%v", in.raws)
	}

	// receiver failures are not acknowledged back to the sender
	in.err = errors.New("boom")

	if err := l.PostMessage(t.Context(), "z"); err != nil {
		t.Fatalf("post must not report receiver errors, got %v", err)
	}

	if len(in.raws) != 2 || !strings.Contains(logs.String(), "boom") {
		t.Fatalf("raws=%v logs=%q", in.raws, logs.String())
	}

	// a nil logger is fine
	quiet := inmemory.NewLoopback(in, nil)
	if err := quiet.PostMessage(t.Context(), "q"); err != nil {
		t.Fatalf("post: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := quiet.PostMessage(ctx, "late"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
