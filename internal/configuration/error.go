package configuration

import "errors"

// ErrInvalidConfig is returned for configuration values that cannot be
// parsed or are out of range.
var ErrInvalidConfig = errors.New("invalid configuration")
