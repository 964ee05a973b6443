package common

import "errors"

// ErrInvalidInput marks malformed series, grids or parameters. Packages wrap it
// with context; callers test for it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")
