package hls

import (
	"errors"
)

var (
	// ErrNotInitialized indicates the store was used before Initialize.
	ErrNotInitialized = errors.New("segment store not initialized")
	// ErrCaptureUnavailable wraps a frame source failure during segment
	// creation.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrInvalidSettings indicates an out-of-range settings update.
	ErrInvalidSettings = errors.New("invalid stream settings")
)
