package store

import "errors"

var (
	// ErrStoreUnreachable means the vector database could not be
	// reached within the startup retry budget.
	ErrStoreUnreachable = errors.New("vector store unreachable")

	// ErrDimensionMismatch means a vector does not match the dimension
	// the store was initialized with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
