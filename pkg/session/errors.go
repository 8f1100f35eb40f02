package session

import (
	"errors"
)

var (
	// ErrAlreadyInitialized indicates a different device already holds
	// the single active session.
	ErrAlreadyInitialized = errors.New("session already initialized for another device")
	// ErrNotInitialized indicates a session operation before
	// InitializeConnection.
	ErrNotInitialized = errors.New("session not initialized")
)
