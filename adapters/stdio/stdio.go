package stdio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
)

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 16 << 20

const headerSize = 4

type flusher interface{ Flush() error }

// Writer is a cbridge.Poster writing one frame per envelope.
// Frames from concurrent posts never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ cbridge.Poster = (*Writer)(nil)

// NewWriter wraps w. If w has a Flush method (e.g. *bufio.Writer) it is flushed after every frame.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) PostMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if w.w == nil {
		return fmt.Errorf("stdio post: %w", berr.ErrTransportNotConfigured)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := WriteFrame(w.w, []byte(text)); err != nil {
		return fmt.Errorf("stdio post: %w", err)
	}

	if f, ok := w.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("stdio post flush: %w", errors.Join(berr.ErrPostFailed, err))
		}
	}

	return nil
}

// WriteFrame writes body as one length-prefixed frame.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("write frame of %d bytes: %w", len(body), berr.ErrFrameTooLarge)
	}

	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body))) //nolint:gosec // bounded by MaxFrameSize
	copy(buf[headerSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", errors.Join(berr.ErrPostFailed, err))
	}

	return nil
}

// ReadFrame reads one frame body. It returns io.EOF when the stream ends cleanly
// between frames and ErrFrameTruncated when it ends inside one.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", berr.ErrFrameTruncated)
		}

		return nil, err
	}

	size := binary.LittleEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("read frame of %d bytes: %w", size, berr.ErrFrameTooLarge)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame body: %w", berr.ErrFrameTruncated)
		}

		return nil, err
	}

	return body, nil
}

// Pump reads frames from r and hands each to in until the stream ends.
// A clean end of stream returns nil. Delivery errors are logged and the pump continues;
// framing errors stop it. ctx is checked between frames, so a blocked read is only
// interrupted by closing r.
func Pump(ctx context.Context, r io.Reader, in cbridge.Inbound, logger *slog.Logger) error {
	if r == nil || in == nil {
		return fmt.Errorf("stdio pump: %w", berr.ErrTransportNotConfigured)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("stdio pump: %w", err)
		}

		if err := in.DeliverInbound(ctx, body); err != nil && logger != nil {
			logger.WarnContext(ctx, "stdio inbound delivery failed", "bytes", len(body), "err", err)
		}
	}
}
