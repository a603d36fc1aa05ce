package latency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Command is a fire-and-forget instruction for the timing box.
type Command int

const (
	CommandAutoTriggerOn Command = iota
	CommandAutoTriggerOff
)

func (c Command) String() string {
	switch c {
	case CommandAutoTriggerOn:
		return "auto-trigger on"
	case CommandAutoTriggerOff:
		return "auto-trigger off"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Clock is the transport to the timing box. After a successful Sync, Micros
// and the timestamps of delivered trigger events share one time base.
type Clock interface {
	// Sync establishes the shared time base. It blocks until done or ctx ends.
	Sync(ctx context.Context) error
	// Micros returns the current time in the shared base.
	Micros() int64
	Command(cmd Command) error
	StartListening() error
	StopListening()
	// SetTriggerHandler installs the single trigger callback, replacing any
	// previous one. The callback runs on the transport's goroutine.
	SetTriggerHandler(func(TriggerEvent))
	ClearTriggerHandler()
	// CheckDrift reports clock drift since the last Sync; diagnostic only.
	CheckDrift()
}

// TouchHandler receives one touch callback's samples: historical
// sub-samples first, the current sample last.
type TouchHandler func(batch []TouchSample)

// CaptureSurface is the screen area the user drags across.
type CaptureSurface interface {
	// SetTouchHandler enables touch capture; nil disables it.
	SetTouchHandler(h TouchHandler)
	StartStimulus()
	StopStimulus()
}

// State is a session lifecycle state.
type State int32

const (
	Idle State = iota
	Syncing
	Recording
	Finished
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Recording:
		return "recording"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// DefaultSyncTimeout bounds a clock sync when Options.SyncTimeout is zero.
const DefaultSyncTimeout = 5 * time.Second

// defaultProgressInterval caps live count updates at 10 per second.
const defaultProgressInterval = 100 * time.Millisecond

// Options configure a Session. Clock and Surface are required.
type Options struct {
	Clock   Clock
	Surface CaptureSurface
	Sink    LogSink      // defaults to SlogSink over Logger
	Logger  *slog.Logger // diagnostics; defaults to slog.Default()

	Axis        Axis
	Search      SearchConfig
	SyncTimeout time.Duration
	LogRawData  bool

	// Progress, if set, is called from producer goroutines with the live
	// counts, at most once per ProgressInterval.
	Progress         func(Counts)
	ProgressInterval time.Duration
}

// Session drives one drag latency measurement: clock sync, capture, and the
// analysis pipeline on finish. Control methods are serialized; producers only
// touch the buffers.
type Session struct {
	mu    sync.Mutex
	state atomic.Int32

	clock    Clock
	surface  CaptureSurface
	sink     LogSink
	base     *slog.Logger
	logger   *slog.Logger
	pipeline Pipeline
	buffers  *EventBuffers

	syncTimeout time.Duration
	logRaw      bool
	progress    func(Counts)
	limiter     *rate.Limiter

	runID  string
	result Estimate
	err    error
}

// NewSession validates opts and returns an idle session.
func NewSession(opts Options) (*Session, error) {
	if opts.Clock == nil {
		return nil, errors.New("session requires a clock")
	}
	if opts.Surface == nil {
		return nil, errors.New("session requires a capture surface")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = SlogSink{Logger: logger}
	}
	timeout := opts.SyncTimeout
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}

	s := &Session{
		clock:   opts.Clock,
		surface: opts.Surface,
		sink:    sink,
		base:    logger,
		logger:  logger,
		pipeline: Pipeline{
			Axis:      opts.Axis,
			Estimator: NewEstimator(opts.Search),
			Sink:      sink,
		},
		buffers:     NewEventBuffers(),
		syncTimeout: timeout,
		logRaw:      opts.LogRawData,
		progress:    opts.Progress,
	}
	if s.progress != nil {
		interval := opts.ProgressInterval
		if interval <= 0 {
			interval = defaultProgressInterval
		}
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return s, nil
}

// State returns the current state without waiting for a transition in
// progress.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("session state", "from", prev.String(), "to", st.String())
	}
}

// Counts returns the live counters.
func (s *Session) Counts() Counts {
	return s.buffers.Counts()
}

// RunID identifies the current or most recent recording.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Buffers exposes the capture buffers, e.g. for replay in tests.
func (s *Session) Buffers() *EventBuffers {
	return s.buffers
}

// Start syncs the clock and begins recording. It is valid from Idle,
// Finished and Aborted. On sync failure the session returns to Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.State(); st {
	case Idle, Finished, Aborted:
	default:
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, st)
	}
	s.sink.Log("Starting drag latency test")
	return s.syncAndRecord(ctx)
}

// Restart abandons whatever the session was doing, re-syncs the clock,
// clears all captured data and begins recording again.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink.Log("## Restarting drag latency measurement. Re-sync clocks ...")
	if s.State() == Recording {
		s.stopCapture()
	}
	return s.syncAndRecord(ctx)
}

func (s *Session) syncAndRecord(ctx context.Context) error {
	s.setState(Syncing)
	s.runID = uuid.New().String()
	s.logger = s.base.With("run", s.runID)

	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	err := s.clock.Sync(syncCtx)
	cancel()
	if err != nil {
		s.sink.Log("Error syncing clocks: " + err.Error())
		s.setState(Idle)
		return fmt.Errorf("%w: %w", ErrClockSync, err)
	}

	s.buffers.Reset()
	s.result, s.err = Estimate{}, nil

	s.surface.SetTouchHandler(s.onTouch)
	s.clock.SetTriggerHandler(s.onTrigger)
	if err := s.clock.Command(CommandAutoTriggerOn); err != nil {
		s.sink.Log("Error: " + err.Error())
	}
	if err := s.clock.StartListening(); err != nil {
		s.sink.Log("Error: " + err.Error())
	}
	s.surface.StartStimulus()
	s.setState(Recording)
	return nil
}

// stopCapture disables both producers and the stimulus.
func (s *Session) stopCapture() {
	s.surface.StopStimulus()
	s.clock.StopListening()
	if err := s.clock.Command(CommandAutoTriggerOff); err != nil {
		s.sink.Log("Error: " + err.Error())
	}
	s.surface.SetTouchHandler(nil)
	s.clock.ClearTriggerHandler()
}

// Finish stops capture and runs the analysis pipeline on the frozen buffers.
// The session ends Finished on success and Aborted on any data or polarity
// failure. Calling Finish again once finished or aborted returns the stored
// outcome without re-running anything.
func (s *Session) Finish() (Estimate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.State(); st {
	case Finished, Aborted:
		return s.result, s.err
	case Recording:
	default:
		return Estimate{}, fmt.Errorf("%w: finish while %s", ErrInvalidTransition, st)
	}

	s.stopCapture()
	s.clock.CheckDrift()
	s.buffers.Freeze()

	touches, triggers := s.buffers.Snapshot()
	if lateTouches, lateTriggers := s.buffers.Dropped(); lateTouches+lateTriggers > 0 {
		s.logger.Debug("events arrived after capture stopped", "touches", lateTouches, "triggers", lateTriggers)
	}
	s.sink.Log(fmt.Sprintf("Recorded %d laser events and %d touch events.", len(triggers), len(touches)))
	if s.logRaw {
		WriteRawData(s.sink, touches, triggers)
	}

	s.result, s.err = s.pipeline.Run(touches, triggers)
	if s.err != nil {
		s.setState(Aborted)
		s.logger.Debug("measurement aborted", "error", s.err)
		return s.result, s.err
	}
	s.setState(Finished)
	s.logger.Debug("measurement finished", "latency_ms", s.result.Latency)
	return s.result, nil
}

func (s *Session) onTouch(batch []TouchSample) {
	if s.buffers.RecordTouch(batch...) {
		s.reportProgress()
	}
}

func (s *Session) onTrigger(ev TriggerEvent) {
	if s.buffers.RecordTrigger(ev) {
		s.reportProgress()
	}
}

func (s *Session) reportProgress() {
	if s.limiter == nil || !s.limiter.Allow() {
		return
	}
	s.progress(s.buffers.Counts())
}
