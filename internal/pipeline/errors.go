package pipeline

import "errors"

// ErrUnitPanicked marks a worker unit that crashed. Crashed units write no
// checkpoint.
var ErrUnitPanicked = errors.New("worker unit panicked")

// ErrIntervalOutOfRange is returned when a unit's interval does not fit the
// work list it was dispatched with.
var ErrIntervalOutOfRange = errors.New("interval out of range")
