//go:build ignore

// verify_estimator sweeps injected latencies through the offline drag
// generator and prints what the estimator recovers.
//
// Usage: go run cmd/verify_estimator/main.go
package main

import (
	"fmt"
	"math"
	"time"

	"github.com/cbrunnkvist/draglat/latency"
	"github.com/cbrunnkvist/draglat/sim"
)

type probe struct{}

func (probe) Micros() int64 { return 0 }
func (probe) Crossing(int64, latency.Direction) error { return nil }

func main() {
	fmt.Println("=== draglat Estimator Verification ===")
	fmt.Println()

	testSweep()
	fmt.Println()
	testJitter()
}

func measure(cfg sim.Config, length time.Duration) (latency.Estimate, error) {
	d, err := sim.NewDrag(cfg, probe{}, probe{})
	if err != nil {
		return latency.Estimate{}, err
	}
	touches, triggers := d.Record(1_000_000, length)
	c, err := latency.Condition(touches, triggers, latency.AxisY)
	if err != nil {
		return latency.Estimate{}, err
	}
	return latency.NewEstimator(latency.DefaultSearch()).Estimate(c)
}

func testSweep() {
	fmt.Println("1. Latency sweep (no jitter, 120 Hz, 10s)")
	fmt.Println()

	base := sim.Profiles["phone-120hz"]
	base.Jitter = 0
	base.Seed = 1
	pass := true
	for _, ms := range []float64{0, 5, 16.7, 33.3, 50, 80, 120, 200} {
		cfg := base
		cfg.Latency = time.Duration(ms * float64(time.Millisecond))
		est, err := measure(cfg, 10*time.Second)
		if err != nil {
			fmt.Printf("   %6.1f ms: ERROR %v\n", ms, err)
			pass = false
			continue
		}
		diff := est.Latency - ms
		fmt.Printf("   %6.1f ms -> %7.2f ms (sides %.2f / %.2f)  err %+.2f\n",
			ms, est.Latency, est.Sides[0].BestShift, est.Sides[1].BestShift, diff)
		if math.Abs(diff) > 0.1 {
			pass = false
		}
	}
	if pass {
		fmt.Println("   ✓ PASS")
	} else {
		fmt.Println("   ✗ FAIL - recovered latency off by more than 0.1 ms")
	}
}

func testJitter() {
	fmt.Println("2. Jitter spread (60 Hz, 60 ms, 20 seeds)")
	fmt.Println()

	for _, jitter := range []time.Duration{0, 2 * time.Millisecond, 8 * time.Millisecond} {
		var minL, maxL, sum float64
		minL = math.Inf(1)
		maxL = math.Inf(-1)
		n := 0
		for seed := int64(1); seed <= 20; seed++ {
			cfg := sim.Profiles["phone-60hz"]
			cfg.Jitter = jitter
			cfg.Seed = seed
			est, err := measure(cfg, 8*time.Second)
			if err != nil {
				fmt.Printf("   seed %d: ERROR %v\n", seed, err)
				continue
			}
			minL = math.Min(minL, est.Latency)
			maxL = math.Max(maxL, est.Latency)
			sum += est.Latency
			n++
		}
		if n == 0 {
			continue
		}
		fmt.Printf("   jitter ±%-5v Min: %.2f | Max: %.2f | Avg: %.2f ms\n", jitter, minL, maxL, sum/float64(n))
	}
}
