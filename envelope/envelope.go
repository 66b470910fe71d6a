/*
Package envelope encodes and decodes the bridge wire format: a JSON object with
exactly two keys, "channel" (string) and "payload" (any JSON value).
*/
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
)

const (
	keyChannel = "channel"
	keyPayload = "payload"
)

// Codec is the structural text serialization used for envelopes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type stdCodec struct{}

func (stdCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (stdCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type sonicCodec struct{ api sonic.API }

func (c sonicCodec) Marshal(v any) ([]byte, error)      { return c.api.Marshal(v) }
func (c sonicCodec) Unmarshal(data []byte, v any) error { return c.api.Unmarshal(data, v) }

var (
	// JSON is the default codec backed by encoding/json. It rejects cyclic values.
	JSON Codec = stdCodec{}

	// Sonic is a faster codec backed by bytedance/sonic in std-compatible mode.
	// It rejects the same values as JSON; cycles fail on its nesting depth limit.
	Sonic Codec = sonicCodec{api: sonic.ConfigStd}
)

// Encode builds the wire text for one envelope.
// Values outside the JSON value space (funcs, chans, cycles, NaN) fail with ErrEncoding.
func Encode(c Codec, channel string, payload any) ([]byte, error) {
	b, err := c.Marshal(cbridge.Envelope{Channel: channel, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", channel, errors.Join(berr.ErrEncoding, err))
	}

	return b, nil
}

// Decode parses wire text into an Envelope. The payload is decoded exactly once.
// Malformed text, a non-object document, a missing or non-string channel, and a
// missing payload key fail with ErrDecoding. An explicit null payload is valid.
func Decode(c Codec, raw []byte) (cbridge.Envelope, error) {
	var fields map[string]json.RawMessage
	if err := c.Unmarshal(raw, &fields); err != nil {
		return cbridge.Envelope{}, decodeErr(err)
	}

	rawChannel, ok := fields[keyChannel]
	if !ok {
		return cbridge.Envelope{}, decodeErr(errors.New("missing channel"))
	}

	var channel string
	if err := decodeString(c, rawChannel, &channel); err != nil {
		return cbridge.Envelope{}, decodeErr(err)
	}

	rawPayload, ok := fields[keyPayload]
	if !ok {
		return cbridge.Envelope{}, decodeErr(fmt.Errorf("envelope %q: missing payload", channel))
	}

	var payload any
	if err := c.Unmarshal(rawPayload, &payload); err != nil {
		return cbridge.Envelope{}, decodeErr(fmt.Errorf("envelope %q payload: %w", channel, err))
	}

	return cbridge.Envelope{Channel: channel, Payload: payload}, nil
}

// decodeString rejects null and any non-string channel value.
func decodeString(c Codec, raw json.RawMessage, dst *string) error {
	var v any
	if err := c.Unmarshal(raw, &v); err != nil {
		return err
	}

	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("channel must be a string, got %T", v)
	}

	*dst = s

	return nil
}

func decodeErr(err error) error {
	return fmt.Errorf("decode envelope: %w", errors.Join(berr.ErrDecoding, err))
}
