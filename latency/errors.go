package latency

import (
	"errors"
	"fmt"
)

var (
	// ErrClockSync indicates the transport failed while synchronizing clocks.
	ErrClockSync = errors.New("clock sync failed")
	// ErrInsufficientTouchData indicates fewer touch samples than MinTouchSamples.
	ErrInsufficientTouchData = errors.New("insufficient touch data")
	// ErrInsufficientTriggerData indicates fewer trigger events than
	// MinTriggerEvents, either before or after trimming.
	ErrInsufficientTriggerData = errors.New("insufficient trigger data")
	// ErrSensorPolarity indicates the first crossing was not a beam entry.
	ErrSensorPolarity = errors.New("first crossing is not a beam entry")
	// ErrInsufficientSideData indicates a side had too few crossings to score.
	ErrInsufficientSideData = errors.New("insufficient crossings on one side")
	// ErrInvalidTransition is returned for session operations not permitted
	// in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// CountError reports a population threshold violation.
type CountError struct {
	Err   error  // one of the sentinel errors above
	Stage string // e.g. "touch", "trigger", "trigger after trim", "side 1"
	Got   int
	Min   int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("%v: %d %s events (need at least %d)", e.Err, e.Got, e.Stage, e.Min)
}

func (e *CountError) Unwrap() error { return e.Err }
