package latency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorRecoversInjectedShift(t *testing.T) {
	touches, triggers := triangleCapture(150, 10, 15)

	c, err := Condition(touches, triggers, AxisY)
	require.NoError(t, err)
	require.Len(t, c.LT, 10)

	est, err := NewEstimator(DefaultSearch()).Estimate(c)
	require.NoError(t, err)

	t.Logf("sides: %+v", est.Sides)
	assert.InDelta(t, 15.0, est.Latency, 1.0)
	for _, side := range est.Sides {
		assert.InDelta(t, 15.0, side.BestShift, 0.05, "side %d", side.Side)
		assert.Less(t, side.Dispersion, 0.1, "side %d", side.Side)
	}
	assert.Equal(t, 5, est.Sides[0].Crossings)
	assert.Equal(t, 5, est.Sides[1].Crossings)
}

func TestEstimatorRecoversRangeOfShifts(t *testing.T) {
	for _, lag := range []float64{0, 8.5, 42, 97.25} {
		touches, triggers := triangleCapture(150, 10, lag)
		c, err := Condition(touches, triggers, AxisY)
		require.NoError(t, err)

		est, err := NewEstimator(DefaultSearch()).Estimate(c)
		require.NoError(t, err)
		assert.InDelta(t, lag, est.Latency, 0.05, "lag %v", lag)
	}
}

func TestEstimatorDeterministic(t *testing.T) {
	touches, triggers := triangleCapture(150, 10, 15)
	c, err := Condition(touches, triggers, AxisY)
	require.NoError(t, err)

	e := NewEstimator(DefaultSearch())
	first, err := e.EstimateArrays(c.FT, c.FY, c.LT, c.LDir)
	require.NoError(t, err)
	second, err := e.EstimateArrays(c.FT, c.FY, c.LT, c.LDir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEstimatorSensorPolarity(t *testing.T) {
	touches, triggers := triangleCapture(150, 11, 15)
	// Drop the first entry so the sequence starts with an exit.
	c, err := Condition(touches, triggers[1:], AxisY)
	require.NoError(t, err)
	require.Equal(t, Exit, c.LDir[0])

	_, err = NewEstimator(DefaultSearch()).Estimate(c)
	assert.ErrorIs(t, err, ErrSensorPolarity)
}

func TestEstimatorInsufficientSideData(t *testing.T) {
	ft := []float64{0, 10, 20}
	fy := []float64{0, 1, 2}

	_, err := NewEstimator(DefaultSearch()).EstimateArrays(ft, fy, []float64{5, 6}, []Direction{Entry, Exit})
	require.ErrorIs(t, err, ErrInsufficientSideData)
	var ce *CountError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Got)

	_, err = NewEstimator(DefaultSearch()).EstimateArrays(ft, fy, nil, nil)
	assert.ErrorIs(t, err, ErrSensorPolarity)
}

func TestEstimatorCustomSearch(t *testing.T) {
	touches, triggers := triangleCapture(150, 10, 30)
	c, err := Condition(touches, triggers, AxisY)
	require.NoError(t, err)

	// A single coarse stage lands on its grid.
	est, err := NewEstimator(SearchConfig{Stages: []SearchStage{{Step: 1, HalfWidth: 60}}}).Estimate(c)
	require.NoError(t, err)
	assert.Equal(t, 30.0, est.Latency)

	// An empty config falls back to the default stages.
	est, err = NewEstimator(SearchConfig{}).Estimate(c)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, est.Latency, 0.05)
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, variance(nil))
	assert.Equal(t, 0.0, variance([]float64{3, 3, 3}))
	assert.Equal(t, 4.0, variance([]float64{2, 4, 4, 4, 5, 5, 7, 9}))
}

func BenchmarkEstimate(b *testing.B) {
	touches, triggers := triangleCapture(150, 10, 15)
	c, err := Condition(touches, triggers, AxisY)
	if err != nil {
		b.Fatal(err)
	}
	e := NewEstimator(DefaultSearch())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Estimate(c); err != nil {
			b.Fatal(err)
		}
	}
}
