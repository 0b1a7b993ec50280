package lookup

import "errors"

// ErrMissingCredential is returned when a lookup is attempted without an API key.
var ErrMissingCredential = errors.New("missing lookup credential")

// ErrInvalidKeyBank is returned when the references bank cannot be decoded.
var ErrInvalidKeyBank = errors.New("invalid references bank")
