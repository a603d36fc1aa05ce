package latency

import (
	"math"
	"sort"
)

// Interp returns the piecewise-linear interpolation of (times, values) at each
// query time. times must be non-decreasing. Queries outside the sampled span
// are clamped to the nearest endpoint value. Repeated knot times are treated
// as a single knot (the last value at that time wins inside the span).
// With no knots every result is NaN.
func Interp(query, times, values []float64) []float64 {
	return InterpInto(make([]float64, len(query)), query, times, values)
}

// InterpInto is Interp writing into dst, which must have len(query) elements.
// It returns dst.
func InterpInto(dst, query, times, values []float64) []float64 {
	n := len(times)
	if len(values) < n {
		n = len(values)
	}
	for qi, q := range query {
		dst[qi] = interpOne(q, times[:n], values[:n])
	}
	return dst
}

func interpOne(q float64, times, values []float64) float64 {
	n := len(times)
	switch {
	case n == 0:
		return math.NaN()
	case q <= times[0]:
		return values[0]
	case q >= times[n-1]:
		return values[n-1]
	}
	// First knot strictly after q; times[hi-1] <= q < times[hi] so the
	// bracket never has zero width.
	hi := sort.Search(n, func(i int) bool { return times[i] > q })
	lo := hi - 1
	t0, t1 := times[lo], times[hi]
	v0, v1 := values[lo], values[hi]
	return v0 + (v1-v0)*(q-t0)/(t1-t0)
}
