package l1grid

import "errors"

var (
	// ErrInvalidConfig marks a configuration that makes the whole call
	// meaningless (non-positive resolution, malformed window function,
	// negative tolerance). It is always fatal and no partial result is returned.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrOutOfExtent marks a coordinate outside the area covered by a grid or
	// zone set. Callers decide whether to skip or abort.
	ErrOutOfExtent = errors.New("coordinate out of extent")
)
