package latency

import (
	"math"
	"sync"
)

// MinSideCrossings is the fewest crossings a side needs for its dispersion
// to depend on the shift at all.
const MinSideCrossings = 2

// SearchStage is one pass of the grid search: candidates are
// center + j*Step for every integer j with |j*Step| <= HalfWidth.
type SearchStage struct {
	Step      float64 // ms
	HalfWidth float64 // ms
}

// SearchConfig controls the shift search. The first stage is centered on
// Center; each later stage is centered on the previous stage's winner.
type SearchConfig struct {
	Center float64 // ms
	Stages []SearchStage
}

// DefaultSearch scans +/-150 ms at 0.1 ms, then refines +/-1 ms at 0.01 ms.
func DefaultSearch() SearchConfig {
	return SearchConfig{
		Stages: []SearchStage{
			{Step: 0.1, HalfWidth: 150},
			{Step: 0.01, HalfWidth: 1},
		},
	}
}

// SideEstimate is the search outcome for one beam edge.
type SideEstimate struct {
	Side       int
	Crossings  int
	BestShift  float64 // ms
	Dispersion float64 // standard deviation of predicted positions at BestShift, px
}

// Estimate is the final result of a run.
type Estimate struct {
	Latency float64 // ms, mean of the two per-side best shifts
	Sides   [2]SideEstimate
}

// Estimator finds the drag latency from conditioned arrays.
type Estimator struct {
	search SearchConfig
}

// NewEstimator returns an estimator using cfg; a config with no stages falls
// back to DefaultSearch.
func NewEstimator(cfg SearchConfig) *Estimator {
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultSearch().Stages
	}
	return &Estimator{search: cfg}
}

// Estimate runs the per-side searches on c and averages them.
func (e *Estimator) Estimate(c Conditioned) (Estimate, error) {
	return e.EstimateArrays(c.FT, c.FY, c.LT, c.LDir)
}

// EstimateArrays is Estimate on bare arrays: touch times and positions, and
// trimmed trigger times and directions, all in ms on a common base.
func (e *Estimator) EstimateArrays(ft, fy, lt []float64, ldir []Direction) (Estimate, error) {
	if len(ldir) == 0 || ldir[0] != Entry {
		return Estimate{}, ErrSensorPolarity
	}

	sides := SplitSides(lt)
	for s, times := range sides {
		if len(times) < MinSideCrossings {
			return Estimate{}, &CountError{Err: ErrInsufficientSideData, Stage: sideStage[s], Got: len(times), Min: MinSideCrossings}
		}
	}

	var (
		est Estimate
		wg  sync.WaitGroup
	)
	for s := range sides {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			shift, disp := e.bestShift(sides[s], ft, fy)
			est.Sides[s] = SideEstimate{
				Side:       s,
				Crossings:  len(sides[s]),
				BestShift:  shift,
				Dispersion: math.Sqrt(disp),
			}
		}(s)
	}
	wg.Wait()

	est.Latency = (est.Sides[0].BestShift + est.Sides[1].BestShift) / 2
	return est, nil
}

var sideStage = [2]string{"side 0 crossing", "side 1 crossing"}

// bestShift returns the shift minimizing the variance of touch positions
// interpolated at the shifted crossing times, and that variance.
func (e *Estimator) bestShift(crossings, ft, fy []float64) (float64, float64) {
	query := make([]float64, len(crossings))
	pos := make([]float64, len(crossings))

	center := e.search.Center
	bestVar := math.Inf(1)
	for _, stage := range e.search.Stages {
		if stage.Step <= 0 {
			continue
		}
		n := int(math.Floor(stage.HalfWidth/stage.Step + 1e-9))
		stageBest, stageVar := center, math.Inf(1)
		for j := -n; j <= n; j++ {
			shift := center + float64(j)*stage.Step
			for i, t := range crossings {
				query[i] = t + shift
			}
			v := variance(InterpInto(pos, query, ft, fy))
			if v < stageVar || (v == stageVar && math.Abs(shift) < math.Abs(stageBest)) {
				stageBest, stageVar = shift, v
			}
		}
		center, bestVar = stageBest, stageVar
	}
	return center, bestVar
}

// variance is the population variance of xs.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
