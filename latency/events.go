// Package latency implements the drag-latency measurement engine: buffering of
// touch samples and beam-crossing triggers, conditioning onto a common time
// base, side classification, and the shift search that recovers the latency
// between physical motion and reported touch position.
package latency

// Direction is the beam crossing direction reported by the timing box.
type Direction int

const (
	// Entry means the finger moved into the beam (light off).
	Entry Direction = 0
	// Exit means the finger left the beam (light on).
	Exit Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Entry:
		return "entry"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Point is a touch position in screen pixels.
type Point struct {
	X, Y float64
}

// Axis selects the coordinate aligned with the drag motion.
type Axis int

const (
	AxisY Axis = iota
	AxisX
)

// Of returns the coordinate of p along a.
func (a Axis) Of(p Point) float64 {
	if a == AxisX {
		return p.X
	}
	return p.Y
}

// TouchSample is one reported touch position, timestamped in the shared
// microsecond clock base.
type TouchSample struct {
	Micros int64
	Pos    Point
}

// TriggerEvent is one beam crossing timestamped by the timing box.
type TriggerEvent struct {
	Micros int64
	Dir    Direction
}

// Counts are the live counters shown while recording. They are derived data
// and play no part in the latency computation.
type Counts struct {
	Moves     int
	Downs     int
	Ups       int
	Crossings int
}
