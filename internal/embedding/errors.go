package embedding

import "errors"

var (
	// ErrProviderUnavailable is returned after the retry budget for the
	// embedding provider is exhausted. Callers must not persist partial
	// state when they see it.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrBadResponse is returned when the provider answers with the
	// wrong number of vectors or the wrong dimensionality.
	ErrBadResponse = errors.New("malformed embedding response")
)
