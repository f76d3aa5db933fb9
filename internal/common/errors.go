package common

import "errors"

// Callers match these values with errors.Is. Per-record decrypt failures are
// degraded in place by the codec and never reach callers as errors; the
// sentinels below cover everything that does cross a boundary.
var (
	// Key resolution and cipher errors.
	ErrMissingKey       = errors.New("project key missing")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Legacy plaintext payloads that no longer parse.
	ErrMalformedLegacyData = errors.New("malformed legacy data")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote gateway errors.
	ErrAuthExpired = errors.New("authentication expired")
	ErrTransport   = errors.New("transport failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Cross-surface sync: the extension cannot reach the tab's storage.
	ErrBridgeUnavailable = errors.New("bridge unavailable")
)
