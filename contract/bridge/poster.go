package bridge

import "context"

// Poster is the host's outbound "post message" primitive.
// It receives one encoded envelope per call. Implementations map it onto
// whatever the host owns: a broker connection, a pipe, a webview IPC handle.
type Poster interface {
	PostMessage(ctx context.Context, text string) error
}

// PosterFunc adapts a plain function to Poster.
type PosterFunc func(ctx context.Context, text string) error

func (f PosterFunc) PostMessage(ctx context.Context, text string) error { return f(ctx, text) }

// Inbound is the entry point a host calls when encoded envelope text arrives.
type Inbound interface {
	DeliverInbound(ctx context.Context, raw []byte) error
}
