package latency

import (
	"log/slog"
	"sync"
)

// LogSink receives the human-readable progress and diagnostic lines of a
// measurement run.
type LogSink interface {
	Log(text string)
}

// SlogSink writes each line as an info record on Logger.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Log(text string) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info(text)
}

// LineRecorder keeps every line in memory.
type LineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *LineRecorder) Log(text string) {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
}

// Lines returns a copy of the recorded lines.
func (r *LineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Reset discards the recorded lines.
func (r *LineRecorder) Reset() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}

// teeSink fans one line out to several sinks.
type teeSink []LogSink

func (t teeSink) Log(text string) {
	for _, s := range t {
		s.Log(text)
	}
}

// Tee returns a sink that writes to all of sinks.
func Tee(sinks ...LogSink) LogSink {
	return teeSink(sinks)
}
