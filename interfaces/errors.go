package interfaces

import "errors"

var (
	// ErrValidation marks bad caller input: a missing tenant id, an unknown
	// environment name or a missing certificate file. Detected before any mutation.
	ErrValidation = errors.New("validation error")

	// ErrStorage marks a durable storage failure. It is never retried internally.
	ErrStorage = errors.New("storage error")

	// ErrTimeout is reported when the status service did not answer within the configured bound.
	ErrTimeout = errors.New("status service timed out")

	// ErrUnreachable is reported when the status service could not be contacted.
	ErrUnreachable = errors.New("status service unreachable")

	// ErrProtocol marks an internal invariant violation reaching the envelope construction step.
	ErrProtocol = errors.New("protocol error")
)

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrContentExists is returned by exclusive creates when the key is already taken.
	ErrContentExists = errors.New("content already exists")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrSecretNotFound is returned when a secret reference does not resolve.
	ErrSecretNotFound = errors.New("secret not found")
)
