package inmemory

import (
	"context"
	"log/slog"
	"sync"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
)

// Poster is a thread-safe in-memory implementation of cbridge.Poster.
// It records posted envelope texts for testing and examples.
type Poster struct {
	mu    sync.Mutex
	Texts []string
}

// Ensure Poster implements the contract.
var _ cbridge.Poster = (*Poster)(nil)

func (p *Poster) PostMessage(ctx context.Context, text string) error {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	p.mu.Unlock()

	return nil
}

// Posted returns a copy of the recorded texts.
func (p *Poster) Posted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.Texts...)
}

// Reset discards the recorded texts.
func (p *Poster) Reset() {
	p.mu.Lock()
	p.Texts = nil
	p.mu.Unlock()
}

// Loopback posts every envelope straight into an Inbound, standing in for a host
// that echoes messages back. Wire two bridges' loopbacks to each other to connect them.
type Loopback struct {
	mu     sync.RWMutex
	target cbridge.Inbound
	logger *slog.Logger
}

var _ cbridge.Poster = (*Loopback)(nil)

// NewLoopback creates a Loopback delivering into target. target may be set later with Attach.
// logger may be nil.
func NewLoopback(target cbridge.Inbound, logger *slog.Logger) *Loopback {
	return &Loopback{target: target, logger: logger}
}

// Attach sets the Inbound that receives posted envelopes.
func (l *Loopback) Attach(target cbridge.Inbound) {
	l.mu.Lock()
	l.target = target
	l.mu.Unlock()
}

// PostMessage delivers text synchronously. Posting is fire-and-forget: failures on the
// receiving side are logged at Warn and never reported to the sender.
// With nothing attached the text is dropped.
func (l *Loopback) PostMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	target := l.target
	l.mu.RUnlock()

	if target == nil {
		return nil
	}

	if err := target.DeliverInbound(ctx, []byte(text)); err != nil && l.logger != nil {
		l.logger.WarnContext(ctx, "loopback inbound delivery failed", "bytes", len(text), "err", err)
	}

	return nil
}
