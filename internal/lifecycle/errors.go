package lifecycle

import "errors"

// Error kinds surfaced to collaborators. Raw engine errors never cross this
// boundary: every failure is translated into one of these or wrapped as an
// opaque engine error.
var (
	// ErrEngineUnavailable means the engine connection is down and one
	// reconnect attempt failed. The caller should retry the whole operation
	// later.
	ErrEngineUnavailable = errors.New("engine connection was lost, please try your request again later")
	// ErrChallengeNotFound means the challenge template does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrInstanceNotFound means no instance record exists for the request.
	ErrInstanceNotFound = errors.New("instance not found, try requesting a new one")
	// ErrQuotaExceeded means the user already holds the maximum number of
	// instances.
	ErrQuotaExceeded = errors.New("instance quota exceeded, stop other instances to continue")
	// ErrInvalidVolumeSpec means the challenge's volumes JSON does not parse.
	ErrInvalidVolumeSpec = errors.New("challenge volumes JSON is invalid")
	// ErrInvalidResourceLimit means a configured memory or CPU limit is not
	// a positive number.
	ErrInvalidResourceLimit = errors.New("configured resource limit is invalid")
	// ErrImageNotFound means the challenge image is missing on the engine.
	ErrImageNotFound = errors.New("challenge image not found on the engine")
	// ErrPortResolutionFailed means the engine did not report a published
	// host port for the new instance.
	ErrPortResolutionFailed = errors.New("could not resolve the instance's published port")
	// ErrNoPortAvailable means the port allocator exhausted its attempts.
	ErrNoPortAvailable = errors.New("no available host port found")
)
