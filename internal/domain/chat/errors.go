package chat

import "errors"

// Error taxonomy shared by the live channel and the REST fallback.
// Authorization and validation failures resolve locally and are answered to
// the calling connection; they are never broadcast into a room.
var (
	// ErrUnauthenticated means no valid identity could be established; the connection is rejected.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized means the identity is valid but does not own the order; the join has no effect.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidMessage means the content is empty or oversized; the store is never touched.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStoreUnavailable means persistence failed; nothing was fanned out and the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrChannelUnavailable means no live transport exists; callers fall back to REST send/poll.
	ErrChannelUnavailable = errors.New("channel unavailable")
)
