//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/cbrunnkvist/draglat/latency"
	"github.com/cbrunnkvist/draglat/sim"
)

var version = "0.2.0"

// Exit codes
const (
	exitOK      = 0
	exitUsage   = 1 // bad flags, config or input file
	exitAborted = 2 // measurement ran but could not produce a latency
)

// Defaults
const (
	defaultProfile    = "phone-60hz"
	defaultDuration   = 6 * time.Second
	goroutineExitWait = 500 * time.Millisecond // Max time to wait for goroutines to exit
)

// Config holds all command-line configuration
type Config struct {
	// Simulation
	Profile  string
	Sim      sim.Config
	Duration time.Duration

	// Measurement
	SyncTimeout time.Duration
	Axis        string
	Raw         bool

	// Output
	LogLevel  string
	LogFormat string

	// Analyze
	Watch bool

	// Misc
	ConfigFile   string
	Help         bool
	Version      bool
	ListProfiles bool

	// Subcommand and its arguments
	Command string
	Args    []string
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitUsage)
	}

	if cfg.Version {
		fmt.Printf("draglat %s\n", version)
		os.Exit(exitOK)
	}

	if cfg.ListProfiles {
		printProfiles(os.Stdout)
		os.Exit(exitOK)
	}

	if cfg.Command == "" {
		fmt.Fprintln(os.Stderr, "draglat: measure touch drag latency against a laser beam")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "error: no command specified")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: draglat [flags] simulate | analyze <file>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Quick examples:")
		fmt.Fprintln(os.Stderr, "  draglat simulate                      # default 60 Hz phone")
		fmt.Fprintln(os.Stderr, "  draglat -p sluggish --raw simulate    # dump raw events too")
		fmt.Fprintln(os.Stderr, "  draglat analyze run.log               # re-analyze a raw dump")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run 'draglat --help' for full options.")
		os.Exit(exitUsage)
	}

	os.Exit(run(cfg))
}

func parseFlags(args []string) (*Config, error) {
	cfg := &Config{
		Duration:    defaultDuration,
		SyncTimeout: latency.DefaultSyncTimeout,
		Axis:        "y",
		LogLevel:    "info",
		LogFormat:   "text",
	}

	fs := flag.NewFlagSet("draglat", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = false // Preserve definition order in help

	configFile := fs.StringP("config", "c", "", "Config file (.toml, .yaml or .json)")
	profile := fs.StringP("profile", "p", "", "Simulated panel profile (see below)")
	latencyFlag := fs.String("latency", "", "Simulated panel latency (e.g., 45ms)")
	jitter := fs.StringP("jitter", "j", "", "Simulated per-sample jitter")
	duration := fs.StringP("duration", "d", "", "Recording time when not interactive")
	seed := fs.Int64("seed", 0, "Random seed for jitter (0=random)")
	syncTimeout := fs.String("sync-timeout", "", "Clock sync timeout")
	axis := fs.String("axis", "", "Drag axis: y or x")
	raw := fs.Bool("raw", false, "Log raw laser and touch events before analysis")
	fs.BoolVarP(&cfg.Watch, "watch", "w", false, "analyze: re-run whenever the file changes")
	logLevel := fs.String("log-level", "", "Diagnostic log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Diagnostic log format: text or json")
	fs.BoolVarP(&cfg.Help, "help", "h", false, "Show help")
	fs.BoolVarP(&cfg.Version, "version", "v", false, "Show version")
	fs.BoolVarP(&cfg.ListProfiles, "list-profiles", "L", false, "List available profiles")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "draglat - measure touch drag latency against a laser beam")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Records finger positions and beam crossings on a shared clock and finds")
		fmt.Fprintln(os.Stderr, "the time shift that best lines them up.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  draglat [flags] simulate          run against a simulated box and panel")
		fmt.Fprintln(os.Stderr, "  draglat [flags] analyze <file>    analyze a raw event dump")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Interactive keys (simulate on a terminal):")
		fmt.Fprintln(os.Stderr, "  s start   r restart   f finish   q quit")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Profiles:")
		fmt.Fprintf(os.Stderr, "  %s\n", strings.Join(sim.ProfileNames(), ", "))
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Help {
		fs.Usage()
		return cfg, flag.ErrHelp
	}

	// Config file first, then the profile, then the file's own overrides
	var fc *fileConfig
	if *configFile != "" {
		var err error
		if fc, err = loadConfigFile(*configFile); err != nil {
			return nil, err
		}
		cfg.ConfigFile = *configFile
	}

	profileName := defaultProfile
	if fc != nil && fc.Profile != "" {
		profileName = fc.Profile
	}
	if fs.Changed("profile") {
		profileName = *profile
	}
	if err := applyProfile(cfg, profileName); err != nil {
		return nil, err
	}
	if fc != nil {
		if err := fc.apply(cfg); err != nil {
			return nil, err
		}
	}

	// Explicit flags win
	for _, d := range []struct {
		value    string
		flagName string
		dst      *time.Duration
	}{
		{*latencyFlag, "latency", &cfg.Sim.Latency},
		{*jitter, "jitter", &cfg.Sim.Jitter},
		{*duration, "duration", &cfg.Duration},
		{*syncTimeout, "sync-timeout", &cfg.SyncTimeout},
	} {
		if err := parseDuration(d.value, d.flagName, d.dst); err != nil {
			return nil, err
		}
	}
	if fs.Changed("seed") {
		cfg.Sim.Seed = *seed
	}
	if *axis != "" {
		cfg.Axis = *axis
	}
	if fs.Changed("raw") {
		cfg.Raw = *raw
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if _, err := parseAxis(cfg.Axis); err != nil {
		return nil, err
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("invalid --duration: must be positive")
	}
	if err := cfg.Sim.Validate(); err != nil {
		return nil, fmt.Errorf("invalid panel: %w", err)
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest[0]
		cfg.Args = rest[1:]
	}
	return cfg, nil
}

// parseDuration parses a duration flag value into dst if non-empty.
// Returns an error with the flag name if parsing fails.
func parseDuration(s string, flagName string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", flagName, err)
	}
	*dst = d
	return nil
}

func parseAxis(s string) (latency.Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y":
		return latency.AxisY, nil
	case "x":
		return latency.AxisX, nil
	default:
		return 0, fmt.Errorf("invalid --axis %q: want x or y", s)
	}
}

func printProfiles(w io.Writer) {
	fmt.Fprintln(w, "Available profiles:")
	fmt.Fprintln(w, "")
	for _, name := range sim.ProfileNames() {
		p := sim.Profiles[name]
		hz := float64(time.Second) / float64(p.SampleInterval)
		fmt.Fprintf(w, "  %-12s latency=%-6v jitter=%-6v %4.0f Hz  history=%d  stroke=%v\n",
			name, p.Latency, p.Jitter, hz, p.History, p.Period)
	}
}

// waitWithTimeout waits for a WaitGroup with a timeout.
// Returns true if all goroutines finished, false if timeout.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func run(cfg *Config) int {
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Command {
	case "simulate":
		return runSimulate(ctx, cfg, logger, os.Stdin, os.Stdout)
	case "analyze":
		return runAnalyze(ctx, cfg, logger, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q (want simulate or analyze)\n", cfg.Command)
		return exitUsage
	}
}

// consoleSink prints measurement lines for a human.
type consoleSink struct {
	mu  sync.Mutex
	w   io.Writer
	eol string
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w, eol: "\n"}
}

func (c *consoleSink) Log(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, text+c.eol)
}

// setRaw switches line endings for a terminal without output processing.
func (c *consoleSink) setRaw(raw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw {
		c.eol = "\r\n"
	} else {
		c.eol = "\n"
	}
}

// exitCode maps a measurement outcome to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, latency.ErrInsufficientTouchData),
		errors.Is(err, latency.ErrInsufficientTriggerData),
		errors.Is(err, latency.ErrInsufficientSideData),
		errors.Is(err, latency.ErrSensorPolarity),
		errors.Is(err, latency.ErrClockSync):
		return exitAborted
	default:
		return exitUsage
	}
}
