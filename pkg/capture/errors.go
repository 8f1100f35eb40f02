package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates Start was called while already capturing or
	// before Initialize.
	ErrNotReady = errors.New("capture engine not ready to start")
	// ErrNotCapturing indicates CaptureFrame was called before Start.
	ErrNotCapturing = errors.New("capture engine is not capturing")
	// ErrNotInitialized indicates the frame processor was used before
	// Initialize or after Cleanup.
	ErrNotInitialized = errors.New("frame processor not initialized")
	// ErrInvalidInput indicates a nil raw frame was handed to the processor.
	ErrInvalidInput = errors.New("invalid input frame")
	// ErrInvalidSettings indicates an out-of-range settings update.
	ErrInvalidSettings = errors.New("invalid capture settings")
	// ErrProcessing wraps a frame encode failure.
	ErrProcessing = fmt.Errorf("frame processing failed")
)
