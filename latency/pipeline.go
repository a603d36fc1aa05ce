package latency

import (
	"errors"
	"fmt"
)

// Pipeline conditions captured streams, estimates the latency and narrates
// the outcome to Sink. Every failure produces exactly one line.
type Pipeline struct {
	Axis      Axis
	Estimator *Estimator
	Sink      LogSink
}

// Run analyzes one capture. The inputs are not modified.
func (p Pipeline) Run(touches []TouchSample, triggers []TriggerEvent) (Estimate, error) {
	est := p.Estimator
	if est == nil {
		est = NewEstimator(DefaultSearch())
	}

	c, err := Condition(touches, triggers, p.Axis)
	if err != nil {
		p.log(describe(err))
		return Estimate{}, err
	}

	result, err := est.Estimate(c)
	if err != nil {
		p.log(describe(err))
		return Estimate{}, err
	}

	for _, side := range result.Sides {
		p.log(fmt.Sprintf("bestShift = %.2f (side %d, %d crossings, spread %.2f px)",
			side.BestShift, side.Side, side.Crossings, side.Dispersion))
	}
	p.log(fmt.Sprintf("Drag latency is %.1f [ms]", result.Latency))
	return result, nil
}

func (p Pipeline) log(text string) {
	if p.Sink != nil {
		p.Sink.Log(text)
	}
}

// describe renders a pipeline error as the single line reported to the user.
func describe(err error) string {
	var ce *CountError
	if errors.As(err, &ce) {
		switch {
		case errors.Is(err, ErrInsufficientTouchData):
			return fmt.Sprintf("Insufficient number of touch events (%d < %d), aborting.", ce.Got, ce.Min)
		case ce.Stage == StageTrimmed:
			return fmt.Sprintf("Insufficient number of laser events overlapping with touch events (%d < %d), aborting.", ce.Got, ce.Min)
		case errors.Is(err, ErrInsufficientTriggerData):
			return fmt.Sprintf("Insufficient number of laser events (%d < %d), aborting.", ce.Got, ce.Min)
		case errors.Is(err, ErrInsufficientSideData):
			return fmt.Sprintf("Insufficient number of %s events (%d < %d), aborting.", ce.Stage, ce.Got, ce.Min)
		}
	}
	if errors.Is(err, ErrSensorPolarity) {
		return "First laser crossing is not into the beam, aborting."
	}
	return "Error: " + err.Error()
}
