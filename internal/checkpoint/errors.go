package checkpoint

import "errors"

// ErrInvalidFileName is returned when a name does not follow the
// "<kind>-<start>-<end>.json" layout.
var ErrInvalidFileName = errors.New("invalid checkpoint file name")
