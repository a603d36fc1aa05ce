package latency

// Population floors below which no latency is computed. These are policy,
// not tunables.
const (
	MinTouchSamples  = 100
	MinTriggerEvents = 8
)

// CountError stages reported by Condition.
const (
	StageTouch   = "touch"
	StageTrigger = "trigger"
	StageTrimmed = "trigger after trim"
)

// Conditioned holds the analysis-ready arrays. All times are milliseconds
// relative to the first touch sample.
type Conditioned struct {
	FT   []float64   // touch times
	FY   []float64   // touch positions along the drag axis
	LT   []float64   // trigger times, trimmed to the touch span
	LDir []Direction // trigger directions, parallel to LT

	RawTriggers int // trigger count before trimming
	Trimmed     int // triggers discarded by trimming
}

// TrimTriggers discards trigger events outside the closed interval
// [first, last] (raw microseconds). The tail is trimmed first, then the head,
// each pass looking only at the original order. The input slice is not
// modified; the result aliases it.
func TrimTriggers(triggers []TriggerEvent, first, last int64) []TriggerEvent {
	end := len(triggers)
	for end > 0 && triggers[end-1].Micros > last {
		end--
	}
	start := 0
	for start < end && triggers[start].Micros < first {
		start++
	}
	return triggers[start:end]
}

// Condition validates the captured streams, trims the triggers to the span
// covered by touch samples and rebases both timelines so the first touch
// sample is at time zero.
func Condition(touches []TouchSample, triggers []TriggerEvent, axis Axis) (Conditioned, error) {
	if len(touches) < MinTouchSamples {
		return Conditioned{}, &CountError{Err: ErrInsufficientTouchData, Stage: StageTouch, Got: len(touches), Min: MinTouchSamples}
	}
	if len(triggers) < MinTriggerEvents {
		return Conditioned{}, &CountError{Err: ErrInsufficientTriggerData, Stage: StageTrigger, Got: len(triggers), Min: MinTriggerEvents}
	}

	t0 := touches[0].Micros
	tLast := touches[len(touches)-1].Micros

	kept := TrimTriggers(triggers, t0, tLast)
	if len(kept) < MinTriggerEvents {
		return Conditioned{}, &CountError{Err: ErrInsufficientTriggerData, Stage: StageTrimmed, Got: len(kept), Min: MinTriggerEvents}
	}

	c := Conditioned{
		FT:          make([]float64, len(touches)),
		FY:          make([]float64, len(touches)),
		LT:          make([]float64, len(kept)),
		LDir:        make([]Direction, len(kept)),
		RawTriggers: len(triggers),
		Trimmed:     len(triggers) - len(kept),
	}
	for i, s := range touches {
		c.FT[i] = microsToMillis(s.Micros - t0)
		c.FY[i] = axis.Of(s.Pos)
	}
	for i, ev := range kept {
		c.LT[i] = microsToMillis(ev.Micros - t0)
		c.LDir[i] = ev.Dir
	}
	return c, nil
}

func microsToMillis(us int64) float64 {
	return float64(us) / 1000.
}
