package errors

// Error codes for the bridge contracts. Keep stable; used across adapters and the bridge.
const (
	ErrCodeEncoding               = "eventbridge.encoding_failed"
	ErrCodeDecoding               = "eventbridge.decoding_failed"
	ErrCodeHandlerFailed          = "eventbridge.handler_failed"
	ErrCodeHandlerPanicked        = "eventbridge.handler_panicked"
	ErrCodeTransportNotConfigured = "eventbridge.transport_not_configured"
	ErrCodePostFailed             = "eventbridge.post_failed"
	ErrCodeBridgeClosed           = "eventbridge.closed"
	ErrCodeFrameTooLarge          = "eventbridge.frame_too_large"
	ErrCodeFrameTruncated         = "eventbridge.frame_truncated"
	ErrCodeConfigInvalid          = "eventbridge.config_invalid"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrEncoding               = Code(ErrCodeEncoding)
	ErrDecoding               = Code(ErrCodeDecoding)
	ErrHandlerFailed          = Code(ErrCodeHandlerFailed)
	ErrHandlerPanicked        = Code(ErrCodeHandlerPanicked)
	ErrTransportNotConfigured = Code(ErrCodeTransportNotConfigured)
	ErrPostFailed             = Code(ErrCodePostFailed)
	ErrBridgeClosed           = Code(ErrCodeBridgeClosed)
	ErrFrameTooLarge          = Code(ErrCodeFrameTooLarge)
	ErrFrameTruncated         = Code(ErrCodeFrameTruncated)
	ErrConfigInvalid          = Code(ErrCodeConfigInvalid)
)
