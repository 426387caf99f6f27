package graph

import "errors"

// Errors returned by the query service and its components.
//
// Callers classify failures with errors.Is; the wrapped message carries detail
// for InvalidFilter and NotFound only. Engine failures stay opaque.
var (
	// ErrInvalidFilter covers unknown fields, malformed ranges, unknown kinds,
	// bad paging values and empty required identifier lists.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrNotFound is returned by entity detail when the id resolves to nothing.
	ErrNotFound = errors.New("entity not found")

	// ErrEngineUnavailable means the traversal engine could not be reached or the
	// caller's deadline expired. Safe to retry with backoff.
	ErrEngineUnavailable = errors.New("traversal engine unavailable")

	// ErrEngineError is any other traversal failure.
	ErrEngineError = errors.New("traversal engine error")
)
