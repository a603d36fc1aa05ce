// Package sim generates a synthetic drag: a finger moving back and forth
// across a laser beam at constant speed, seen through a touch panel with a
// configurable reporting latency.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cbrunnkvist/draglat/latency"
)

// Screen position of the beam. The drag runs along Y.
const (
	CenterX = 540.0
	CenterY = 960.0
)

// Config describes the finger motion and the touch panel reporting it.
type Config struct {
	Latency        time.Duration // Panel latency applied to every sample
	Jitter         time.Duration // Jitter range: uniform distribution [-jitter, +jitter]
	SampleInterval time.Duration // Panel sampling period
	History        int           // Historical samples delivered with each callback
	Period         time.Duration // One full stroke down and back up
	Amplitude      float64       // Stroke half-length in px
	BeamWidth      float64       // Beam width in px, centered on CenterY
	Seed           int64         // Random seed for jitter (0 = use current time)
}

// Validate rejects motions that never cross the beam or cannot be sampled.
func (c Config) Validate() error {
	switch {
	case c.SampleInterval <= 0:
		return errors.New("sample interval must be positive")
	case c.Period <= 0:
		return errors.New("period must be positive")
	case c.History < 0:
		return errors.New("history must not be negative")
	case c.BeamWidth <= 0:
		return errors.New("beam width must be positive")
	case c.Amplitude <= c.BeamWidth/2:
		return fmt.Errorf("amplitude %.1f px does not clear the beam", c.Amplitude)
	case c.Latency < 0 || c.Jitter < 0:
		return errors.New("latency and jitter must not be negative")
	}
	return nil
}

// Clock reads microseconds.
type Clock interface {
	Micros() int64
}

// Beam is the timing box watching the laser. Its clock is the physical time
// the finger moves in.
type Beam interface {
	Clock
	Crossing(us int64, dir latency.Direction) error
}

var _ latency.CaptureSurface = (*Drag)(nil)

// Drag is a latency.CaptureSurface fed by a simulated finger. Touch samples
// are stamped with stamps, crossings go to beam at their exact time.
type Drag struct {
	config Config
	beam   Beam
	stamps Clock

	rng *rand.Rand
	mu  sync.Mutex // guards rng

	hmu     sync.Mutex
	handler latency.TouchHandler

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewDrag validates cfg and returns a stopped drag.
func NewDrag(cfg Config, beam Beam, stamps Clock) (*Drag, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Drag{
		config: cfg,
		beam:   beam,
		stamps: stamps,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// randomJitter returns a random offset in [-jitter, +jitter] microseconds.
func (d *Drag) randomJitter() float64 {
	if d.config.Jitter == 0 {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	jitterRange := int64(d.config.Jitter) * 2
	jitter := time.Duration(d.rng.Int63n(jitterRange)) - d.config.Jitter
	return float64(jitter) / float64(time.Microsecond)
}

func (d *Drag) halfPeriod() float64 {
	return float64(d.config.Period) / float64(time.Microsecond) / 2
}

// speed is the finger speed in px per microsecond.
func (d *Drag) speed() float64 {
	return 2 * d.config.Amplitude / d.halfPeriod()
}

// Position returns the finger's Y coordinate tau microseconds after the
// stimulus started. Before the start the finger rests at the far end.
func (d *Drag) Position(tau float64) float64 {
	a := d.config.Amplitude
	if tau <= 0 {
		return CenterY + a
	}
	h := d.halfPeriod()
	k := math.Floor(tau / h)
	f := tau - k*h
	if int64(k)%2 == 0 {
		return CenterY + a - d.speed()*f
	}
	return CenterY - a + d.speed()*f
}

// CrossingTime returns when the n-th beam edge crossing happens, in
// microseconds after the start. Even crossings enter the beam, odd ones
// leave it.
func (d *Drag) CrossingTime(n int) float64 {
	a, e := d.config.Amplitude, d.config.BeamWidth/2
	base := float64(n/2) * d.halfPeriod()
	if n%2 == 0 {
		return base + (a-e)/d.speed()
	}
	return base + (a+e)/d.speed()
}

func crossingDir(n int) latency.Direction {
	if n%2 == 0 {
		return latency.Entry
	}
	return latency.Exit
}

// Record generates a whole capture offline, without a beam or a handler: one
// sample per SampleInterval and every crossing from start to start+length.
func (d *Drag) Record(start int64, length time.Duration) ([]latency.TouchSample, []latency.TriggerEvent) {
	step := float64(d.config.SampleInterval) / float64(time.Microsecond)
	lag := float64(d.config.Latency) / float64(time.Microsecond)
	total := float64(length) / float64(time.Microsecond)

	var touches []latency.TouchSample
	for tau := step; tau <= total; tau += step {
		touches = append(touches, latency.TouchSample{
			Micros: start + int64(math.Round(tau)),
			Pos:    latency.Point{X: CenterX, Y: d.Position(tau - lag + d.randomJitter())},
		})
	}
	var triggers []latency.TriggerEvent
	for n := 0; d.CrossingTime(n) <= total; n++ {
		triggers = append(triggers, latency.TriggerEvent{
			Micros: start + int64(math.Round(d.CrossingTime(n))),
			Dir:    crossingDir(n),
		})
	}
	return touches, triggers
}

// SetTouchHandler enables touch delivery; nil disables it.
func (d *Drag) SetTouchHandler(h latency.TouchHandler) {
	d.hmu.Lock()
	d.handler = h
	d.hmu.Unlock()
}

// StartStimulus starts the finger at rest at the far end. It is a no-op while
// already running.
func (d *Drag) StartStimulus() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.err = nil
	go d.run(ctx, d.beam.Micros(), d.done)
}

// StopStimulus stops the finger and waits for the generator to exit.
func (d *Drag) StopStimulus() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}

// Err returns the error that stopped the last run early, if any.
func (d *Drag) Err() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.cancel != nil {
		return nil
	}
	return d.err
}

func (d *Drag) run(ctx context.Context, start int64, done chan struct{}) {
	defer close(done)

	interval := d.config.SampleInterval * time.Duration(d.config.History+1)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tau := float64(d.beam.Micros() - start)
		for ; d.CrossingTime(next) <= tau; next++ {
			at := start + int64(math.Round(d.CrossingTime(next)))
			if err := d.beam.Crossing(at, crossingDir(next)); err != nil {
				d.err = err
				return
			}
		}
		d.emit(tau)
	}
}

// emit delivers one panel callback for physical time tau: History older
// samples and the current one.
func (d *Drag) emit(tau float64) {
	d.hmu.Lock()
	h := d.handler
	d.hmu.Unlock()
	if h == nil {
		return
	}

	now := d.stamps.Micros()
	step := float64(d.config.SampleInterval) / float64(time.Microsecond)
	lag := float64(d.config.Latency) / float64(time.Microsecond)

	batch := make([]latency.TouchSample, d.config.History+1)
	for i := range batch {
		back := float64(d.config.History-i) * step
		batch[i] = latency.TouchSample{
			Micros: now - int64(math.Round(back)),
			Pos: latency.Point{
				X: CenterX,
				Y: d.Position(tau - back - lag + d.randomJitter()),
			},
		}
	}
	h(batch)
}
