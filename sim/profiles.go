package sim

import (
	"sort"
	"time"
)

// Profiles are preset panels. Every stroke is slow enough that the half
// period exceeds latency plus the default search range.
var Profiles = map[string]Config{
	// Phones
	"phone-60hz": {
		Latency:        60 * time.Millisecond,
		Jitter:         2 * time.Millisecond,
		SampleInterval: 16667 * time.Microsecond,
		Period:         800 * time.Millisecond,
		Amplitude:      400,
		BeamWidth:      8,
	},
	"phone-120hz": {
		Latency:        35 * time.Millisecond,
		Jitter:         1 * time.Millisecond,
		SampleInterval: 8333 * time.Microsecond,
		History:        1, // 240 Hz digitizer batched into 120 Hz frames
		Period:         800 * time.Millisecond,
		Amplitude:      400,
		BeamWidth:      8,
	},

	// Larger panels
	"tablet": {
		Latency:        80 * time.Millisecond,
		Jitter:         4 * time.Millisecond,
		SampleInterval: 8333 * time.Microsecond,
		History:        3,
		Period:         1000 * time.Millisecond,
		Amplitude:      600,
		BeamWidth:      8,
	},
	"stylus": {
		Latency:        20 * time.Millisecond,
		Jitter:         500 * time.Microsecond,
		SampleInterval: 4167 * time.Microsecond,
		History:        3,
		Period:         800 * time.Millisecond,
		Amplitude:      300,
		BeamWidth:      6,
	},

	// Worst case
	"sluggish": {
		Latency:        140 * time.Millisecond,
		Jitter:         10 * time.Millisecond,
		SampleInterval: 16667 * time.Microsecond,
		Period:         1000 * time.Millisecond,
		Amplitude:      400,
		BeamWidth:      12,
	},
}

// ProfileNames returns the profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
