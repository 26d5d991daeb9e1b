package types

import "errors"

// ErrTooFewVertices is returned when a polygon has fewer than three vertices.
var ErrTooFewVertices = errors.New("polygon needs at least 3 vertices")
