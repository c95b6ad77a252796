package domain

import "errors"

// Sentinel errors for domain operations. Callers match with errors.Is;
// lower layers wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrItemNotFound indicates the requested media item does not exist
	ErrItemNotFound = errors.New("media item not found")

	// ErrServerOffline indicates the media server is unreachable
	ErrServerOffline = errors.New("media server is unreachable")

	// ErrAuthFailed indicates the authentication token is invalid or expired
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrNotAuthenticated indicates an operation that needs a Plex token was
	// called before sign-in
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotConnected indicates an operation that needs a server connection
	// was called before one was established
	ErrNotConnected = errors.New("no server connection established")

	// ErrPINExpired indicates the device-link PIN is no longer known to plex.tv
	ErrPINExpired = errors.New("pin expired or not found")

	// ErrPINTimeout indicates the PIN poll loop reached its deadline without
	// the user authorizing the device
	ErrPINTimeout = errors.New("pin authorization timed out")

	// ErrDeviceCodeTimeout indicates the device-code poll loop reached its
	// deadline without the user approving the code
	ErrDeviceCodeTimeout = errors.New("device code authorization timed out")

	// ErrDeviceCodeDenied indicates the user explicitly refused the device code
	ErrDeviceCodeDenied = errors.New("device code denied by user")

	// ErrNoReachableServer indicates every declared connection failed its
	// identity probe
	ErrNoReachableServer = errors.New("no reachable server connection")

	// ErrNoMediaPart indicates item metadata carries no playable media part
	ErrNoMediaPart = errors.New("no playable media part")

	// ErrDecisionFailed indicates the transcode decision response was missing
	// or malformed
	ErrDecisionFailed = errors.New("streaming decision failed")

	// ErrSessionStart indicates the transcode session start call did not
	// return 200
	ErrSessionStart = errors.New("stream session start failed")

	// ErrPlaybackFailed is the terminal playback error after the single
	// permitted transcode fallback has been spent
	ErrPlaybackFailed = errors.New("playback failed")

	// ErrKeyNotFound indicates a storage key has no value
	ErrKeyNotFound = errors.New("key not found")
)
