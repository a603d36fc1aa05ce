package latency

// SideOf labels the i-th (0-based) trimmed crossing with the beam edge it
// happened on. An oscillating drag crosses edges in the order
// top, bottom, bottom, top, top, ... so the label depends on ordinal only.
func SideOf(i int) int {
	return ((i + 1) / 2) % 2
}

// SplitSides returns the crossing times belonging to each side, in order.
func SplitSides(lt []float64) [2][]float64 {
	var sides [2][]float64
	for i, t := range lt {
		s := SideOf(i)
		sides[s] = append(sides[s], t)
	}
	return sides
}
