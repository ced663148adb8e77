package latest

import "errors"

// Domain-specific errors for the latest-value cache.
var (
	// ErrNotFound is returned when no payload has been recorded for a device.
	ErrNotFound = errors.New("latest: no data recorded")

	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("latest: unknown cache backend")

	// ErrUnknownCodec is returned by NewCodec for an unrecognised codec name.
	ErrUnknownCodec = errors.New("latest: unknown cache codec")

	// ErrInvalidConfig is returned when a provider's sizing is unusable.
	ErrInvalidConfig = errors.New("latest: invalid provider config")

	// ErrRejected is returned when a provider refuses to store an entry.
	ErrRejected = errors.New("latest: entry rejected by cache")

	// ErrNilClient is returned when a Redis provider is built without a client.
	ErrNilClient = errors.New("latest: nil redis client")
)
