package nats

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
)

func TestNewWithNATS_NotConfigured(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{URL: "nats://127.0.0.1:1", ConnTimeout: 200 * time.Millisecond},
	} {
		if _, _, err := NewWithNATS(cfg); !errors.Is(err, berr.ErrTransportNotConfigured) {
			t.Fatalf("url %q: want ErrTransportNotConfigured, got %v", cfg.URL, err)
		}
	}
}

func TestFlatten(t *testing.T) {
	if flatten(nil) != nil {
		t.Fatalf("nil header should flatten to nil")
	}

	h := nats.Header{}
	h.Add("x-message-id", "01J")
	h.Add("x-message-id", "ignored")
	h["empty"] = nil

	got := flatten(h)
	if len(got) != 1 || got["x-message-id"] != "01J" {
		t.Fatalf("flatten=%v", got)
	}
}

func TestConnOptions(t *testing.T) {
	if n := len(connOptions(Config{})); n != 0 {
		t.Fatalf("empty config produced %d options", n)
	}

	cfg := Config{
		Name:          "eventbridge",
		ConnTimeout:   time.Second,
		ReconnectWait: time.Second,
		MaxReconnects: -1,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if n := len(connOptions(cfg)); n != 6 {
		t.Fatalf("options=%d", n)
	}
}
