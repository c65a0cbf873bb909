package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed filter or query.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownDimension indicates an unsupported rollup dimension.
	ErrUnknownDimension = errors.New("unknown dimension")
	// ErrUnknownSource indicates an unsupported record source.
	ErrUnknownSource = errors.New("unknown source")
)
