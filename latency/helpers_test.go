package latency

import "math"

const captureBase = int64(1_000_000) // arbitrary shared-clock origin, us

// tri is a triangle wave starting at +amp and falling first.
func tri(t, amp, period float64) float64 {
	ph := math.Mod(t, period)
	if ph < 0 {
		ph += period
	}
	half := period / 2
	if ph < half {
		return amp - 4*amp*ph/period
	}
	return -amp + 4*amp*(ph-half)/period
}

// triangleCapture synthesizes an oscillating drag across a beam of half-width
// 4 px centered on y=0: n touch samples every 10 ms reporting the finger
// position lagMs late, and the first nCross edge crossings of the physical
// motion (period 500 ms, amplitude 100 px).
func triangleCapture(n, nCross int, lagMs float64) ([]TouchSample, []TriggerEvent) {
	const (
		amp    = 100.
		period = 500.
		edge   = 4.
		step   = 10.
	)
	touches := make([]TouchSample, n)
	for k := range touches {
		t := float64(k) * step
		touches[k] = TouchSample{
			Micros: captureBase + int64(t*1000),
			Pos:    Point{X: 50, Y: tri(t-lagMs, amp, period)},
		}
	}

	// The wave passes y=0 at 125 ms and every half period after; it is at
	// +/-edge 0.8 px/ms * 5 ms either side of that.
	slope := 4 * amp / period
	d := edge / slope
	var triggers []TriggerEvent
	for z := period / 4; len(triggers) < nCross; z += period / 2 {
		triggers = append(triggers,
			TriggerEvent{Micros: captureBase + int64(math.Round((z-d)*1000)), Dir: Entry},
			TriggerEvent{Micros: captureBase + int64(math.Round((z+d)*1000)), Dir: Exit},
		)
	}
	return touches, triggers[:nCross]
}
