//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbrunnkvist/draglat/latency"
	"github.com/cbrunnkvist/draglat/sim"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags([]string{"simulate"})
	require.NoError(t, err)

	assert.Equal(t, "simulate", cfg.Command)
	assert.Empty(t, cfg.Args)
	assert.Equal(t, defaultProfile, cfg.Profile)
	assert.Equal(t, sim.Profiles[defaultProfile], cfg.Sim)
	assert.Equal(t, defaultDuration, cfg.Duration)
	assert.Equal(t, latency.DefaultSyncTimeout, cfg.SyncTimeout)
	assert.Equal(t, "y", cfg.Axis)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Raw)
}

func TestParseFlagsExplicit(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-p", "sluggish",
		"--latency", "45ms",
		"-j", "3ms",
		"-d", "2s",
		"--seed", "99",
		"--sync-timeout", "750ms",
		"--axis", "x",
		"--raw",
		"-w",
		"--log-level", "debug",
		"--log-format", "json",
		"analyze", "run.log",
	})
	require.NoError(t, err)

	assert.Equal(t, "sluggish", cfg.Profile)
	assert.Equal(t, 45*time.Millisecond, cfg.Sim.Latency)
	assert.Equal(t, 3*time.Millisecond, cfg.Sim.Jitter)
	assert.Equal(t, sim.Profiles["sluggish"].Period, cfg.Sim.Period)
	assert.Equal(t, int64(99), cfg.Sim.Seed)
	assert.Equal(t, 2*time.Second, cfg.Duration)
	assert.Equal(t, 750*time.Millisecond, cfg.SyncTimeout)
	assert.Equal(t, "x", cfg.Axis)
	assert.True(t, cfg.Raw)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "analyze", cfg.Command)
	assert.Equal(t, []string{"run.log"}, cfg.Args)
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown profile", []string{"-p", "pager"}},
		{"bad latency", []string{"--latency", "fast"}},
		{"bad axis", []string{"--axis", "z"}},
		{"zero duration", []string{"--duration", "0s"}},
		{"unknown flag", []string{"--rtt", "10ms"}},
		{"missing config", []string{"--config", "/nonexistent/draglat.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseFlagsConfigFilePrecedence(t *testing.T) {
	path := writeFile(t, "draglat.toml", `
profile = "tablet"
latency = "33ms"
seed = 9
raw = true
log_level = "debug"

[panel]
period = "1200ms"
beam_width = 10.0
`)

	cfg, err := parseFlags([]string{"--config", path, "simulate"})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "tablet", cfg.Profile)
	assert.Equal(t, 33*time.Millisecond, cfg.Sim.Latency)
	assert.Equal(t, sim.Profiles["tablet"].SampleInterval, cfg.Sim.SampleInterval)
	assert.Equal(t, 1200*time.Millisecond, cfg.Sim.Period)
	assert.Equal(t, 10.0, cfg.Sim.BeamWidth)
	assert.Equal(t, int64(9), cfg.Sim.Seed)
	assert.True(t, cfg.Raw)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Flags beat the file, and a flag profile replaces the file's profile.
	cfg, err = parseFlags([]string{"--config", path, "-p", "stylus", "--latency", "40ms", "--seed", "1", "simulate"})
	require.NoError(t, err)
	assert.Equal(t, "stylus", cfg.Profile)
	assert.Equal(t, 40*time.Millisecond, cfg.Sim.Latency)
	assert.Equal(t, sim.Profiles["stylus"].SampleInterval, cfg.Sim.SampleInterval)
	assert.Equal(t, 1200*time.Millisecond, cfg.Sim.Period)
	assert.Equal(t, int64(1), cfg.Sim.Seed)
}

func TestParseFlagsConfigFormats(t *testing.T) {
	yamlPath := writeFile(t, "draglat.yaml", `
profile: sluggish
jitter: 3ms
panel:
  history: 2
`)
	cfg, err := parseFlags([]string{"-c", yamlPath})
	require.NoError(t, err)
	assert.Equal(t, "sluggish", cfg.Profile)
	assert.Equal(t, 3*time.Millisecond, cfg.Sim.Jitter)
	assert.Equal(t, 2, cfg.Sim.History)

	jsonPath := writeFile(t, "draglat.json", `{"axis": "x", "duration": "9s", "log_format": "json"}`)
	cfg, err = parseFlags([]string{"-c", jsonPath})
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Axis)
	assert.Equal(t, 9*time.Second, cfg.Duration)
	assert.Equal(t, "json", cfg.LogFormat)

	for _, bad := range []struct{ name, content string }{
		{"draglat.ini", "latency=1ms"},
		{"bad.toml", "latency = "},
		{"bad.yaml", "latency: [1"},
		{"bad-duration.toml", `sync_timeout = "soon"`},
		{"bad-panel.yaml", "panel:\n  amplitude: 1.0\n"},
	} {
		_, err := parseFlags([]string{"-c", writeFile(t, bad.name, bad.content)})
		assert.Error(t, err, bad.name)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("debug", "json", &buf)
	require.NoError(t, err)
	logger.Debug("hello", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	ts, ok := rec["time"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(ts, "Z"), ts)

	buf.Reset()
	logger, err = newLogger("warn", "text", &buf)
	require.NoError(t, err)
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	_, err = newLogger("loud", "text", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitAborted, exitCode(&latency.CountError{Err: latency.ErrInsufficientTouchData}))
	assert.Equal(t, exitAborted, exitCode(fmt.Errorf("run: %w", latency.ErrSensorPolarity)))
	assert.Equal(t, exitAborted, exitCode(fmt.Errorf("%w: %w", latency.ErrClockSync, context.DeadlineExceeded)))
	assert.Equal(t, exitUsage, exitCode(errors.New("open run.log: no such file")))
}

func TestConsoleSinkLineEndings(t *testing.T) {
	var buf bytes.Buffer
	c := newConsoleSink(&buf)
	c.Log("a")
	c.setRaw(true)
	c.Log("b")
	c.setRaw(false)
	c.Log("c")
	assert.Equal(t, "a\nb\r\nc\n", buf.String())
}

func TestPrintProfiles(t *testing.T) {
	var buf bytes.Buffer
	printProfiles(&buf)
	for _, name := range sim.ProfileNames() {
		assert.Contains(t, buf.String(), name)
	}
}

// writeDump records an offline drag and writes it as a raw event dump.
func writeDump(t *testing.T, lag time.Duration) string {
	t.Helper()
	cfg := sim.Profiles["phone-120hz"]
	cfg.Latency = lag
	cfg.Jitter = 0
	cfg.Seed = 3
	d, err := sim.NewDrag(cfg, nil, nil)
	require.NoError(t, err)
	touches, triggers := d.Record(2_000_000, 6*time.Second)

	var buf bytes.Buffer
	buf.WriteString("Starting drag latency test\n")
	latency.WriteRawData(newConsoleSink(&buf), touches, triggers)
	return writeFile(t, "run.log", buf.String())
}

var latencyLine = regexp.MustCompile(`Drag latency is ([0-9.]+) \[ms\]`)

func reportedLatency(t *testing.T, out string) float64 {
	t.Helper()
	m := latencyLine.FindAllStringSubmatch(out, -1)
	require.NotEmpty(t, m, "no latency in output:\n%s", out)
	v, err := strconv.ParseFloat(m[len(m)-1][1], 64)
	require.NoError(t, err)
	return v
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnalyzeDump(t *testing.T) {
	path := writeDump(t, 42*time.Millisecond)

	var out bytes.Buffer
	code := runAnalyze(context.Background(), &Config{Axis: "y", Args: []string{path}}, quietLogger(), &out)
	require.Equal(t, exitOK, code, out.String())
	assert.Contains(t, out.String(), "Recorded ")
	assert.InDelta(t, 42.0, reportedLatency(t, out.String()), 0.1)
}

func TestAnalyzeFailures(t *testing.T) {
	short := writeFile(t, "short.log", strings.Join([]string{
		laserDumpHeader, "1000 0", "2000 1", laserDumpFooter,
		touchDumpHeader, "900 1.000 2.000", touchDumpFooter,
	}, "\n"))
	corrupt := writeFile(t, "corrupt.log", laserDumpHeader+"\n1000\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no file", nil, exitUsage},
		{"two files", []string{short, corrupt}, exitUsage},
		{"missing", []string{filepath.Join(t.TempDir(), "nope.log")}, exitUsage},
		{"corrupt", []string{corrupt}, exitUsage},
		{"too little data", []string{short}, exitAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := runAnalyze(context.Background(), &Config{Axis: "y", Args: tt.args}, quietLogger(), &out)
			assert.Equal(t, tt.want, code, out.String())
		})
	}
}

const (
	laserDumpHeader = "#####> LASER EVENTS #####"
	laserDumpFooter = "#####< END OF LASER EVENTS #####"
	touchDumpHeader = "=====> TOUCH EVENTS ====="
	touchDumpFooter = "=====< END OF TOUCH EVENTS ====="
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAnalyzeWatch(t *testing.T) {
	path := writeDump(t, 20*time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- runAnalyze(ctx, &Config{Axis: "y", Watch: true, Args: []string{path}}, quietLogger(), &out)
	}()

	require.Eventually(t, func() bool {
		// Keep rewriting until the watcher is up and has seen a change.
		_ = os.WriteFile(path, data, 0o644)
		return strings.Contains(out.String(), "changed, analyzing again")
	}, 10*time.Second, 250*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitOK, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
	assert.GreaterOrEqual(t, len(latencyLine.FindAllString(out.String(), -1)), 2)
}

func TestRunSimulateTimed(t *testing.T) {
	box, err := openSimulatedBox(quietLogger())
	if err != nil {
		t.Skipf("simulated box unavailable: %v", err)
	}
	box.Close()

	cfg, err := parseFlags([]string{"--duration", "2s", "--raw", "simulate"})
	require.NoError(t, err)
	cfg.Sim = sim.Config{
		Latency:        25 * time.Millisecond,
		SampleInterval: 2 * time.Millisecond,
		History:        3,
		Period:         400 * time.Millisecond,
		Amplitude:      200,
		BeamWidth:      8,
		Seed:           5,
	}

	in, w, err := os.Pipe()
	require.NoError(t, err)
	defer in.Close()
	defer w.Close()

	var out bytes.Buffer
	code := runSimulate(context.Background(), cfg, quietLogger(), in, &out)
	require.Equal(t, exitOK, code, out.String())

	text := out.String()
	assert.Contains(t, text, "Starting drag latency test")
	assert.Contains(t, text, laserDumpHeader)
	assert.InDelta(t, 25.0, reportedLatency(t, text), 3.0)

	// The dump in the output analyzes to the same answer.
	touches, triggers, err := latency.ParseRawData(strings.NewReader(text))
	require.NoError(t, err)
	assert.NotEmpty(t, touches)
	assert.NotEmpty(t, triggers)
}
