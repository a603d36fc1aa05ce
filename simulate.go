//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/cbrunnkvist/draglat/latency"
	"github.com/cbrunnkvist/draglat/sim"
	"github.com/cbrunnkvist/draglat/walt"
)

// deviceClockOrigin is the simulated box's clock at power-up, in µs.
const deviceClockOrigin = 7_300_000_000

// simBox is a simulated timing box on a pty master, reached through the
// serial transport on the slave side.
type simBox struct {
	transport *walt.Transport
	device    *walt.Device
	master    *os.File
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func openSimulatedBox(logger *slog.Logger) (*simBox, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}

	// No echo or output processing on the line before the port is opened.
	if err := makeLineRaw(slave); err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}

	tr, err := walt.Dial(slave.Name(), 0, walt.Options{Logger: logger})
	slave.Close()
	if err != nil {
		master.Close()
		return nil, err
	}

	b := &simBox{
		transport: tr,
		device:    walt.NewDevice(master, deviceClockOrigin, logger.With("component", "device")),
		master:    master,
		logger:    logger,
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.device.Serve(); err != nil {
			logger.Warn("simulated box stopped", "error", err)
		}
	}()
	logger.Debug("simulated box ready", "port", slave.Name())
	return b, nil
}

func (b *simBox) Close() {
	b.transport.Close()
	if !waitWithTimeout(&b.wg, goroutineExitWait) {
		b.logger.Debug("simulated box did not see the hangup")
	}
	b.master.Close()
}

// makeLineRaw clears echo, canonical input and output post-processing.
func makeLineRaw(f *os.File) error {
	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Iflag &^= unix.ICRNL | unix.INLCR | unix.IXON
	termios.Oflag &^= unix.OPOST | unix.ONLCR
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// runSimulate measures a simulated panel: interactively when stdin is a
// terminal, otherwise for cfg.Duration.
func runSimulate(ctx context.Context, cfg *Config, logger *slog.Logger, in *os.File, out io.Writer) int {
	box, err := openSimulatedBox(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	defer box.Close()

	drag, err := sim.NewDrag(cfg.Sim, box.device, box.transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	axis, _ := parseAxis(cfg.Axis)
	console := newConsoleSink(out)
	interactive := term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	opts := latency.Options{
		Clock:       box.transport,
		Surface:     drag,
		Sink:        console,
		Logger:      logger,
		Axis:        axis,
		SyncTimeout: cfg.SyncTimeout,
		LogRawData:  cfg.Raw,
	}
	if interactive {
		opts.Progress = func(c latency.Counts) {
			fmt.Fprintf(os.Stderr, "\r  touches %5d  crossings %3d ", c.Moves, c.Crossings)
		}
	}
	session, err := latency.NewSession(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	logger.Debug("simulating panel", "profile", cfg.Profile, "latency", cfg.Sim.Latency, "jitter", cfg.Sim.Jitter)

	if interactive {
		return runInteractive(ctx, session, in, console)
	}
	return runTimed(ctx, session, cfg.Duration)
}

// runTimed records for d (or until ctx ends) and reports once.
func runTimed(ctx context.Context, session *latency.Session, d time.Duration) int {
	if err := session.Start(ctx); err != nil {
		return exitCode(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	_, err := session.Finish()
	return exitCode(err)
}

// runInteractive drives the session from single key presses.
func runInteractive(ctx context.Context, session *latency.Session, in *os.File, console *consoleSink) int {
	oldState, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error setting raw mode: %v\n", err)
		return exitUsage
	}
	defer term.Restore(int(in.Fd()), oldState)
	console.setRaw(true)
	defer console.setRaw(false)

	console.Log("s: start   r: restart   f: finish   q: quit")

	keys := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := in.Read(buf); err != nil {
				close(keys)
				return
			}
			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	code := exitOK
	for {
		select {
		case <-ctx.Done():
			return code
		case k, ok := <-keys:
			if !ok {
				return code
			}
			var err error
			switch k {
			case 's':
				err = session.Start(ctx)
			case 'r':
				err = session.Restart(ctx)
			case 'f':
				fmt.Fprint(os.Stderr, "\r\n")
				_, err = session.Finish()
			case 'q', 3: // Ctrl-C arrives as a byte in raw mode
				if session.State() == latency.Recording {
					_, err := session.Finish()
					code = exitCode(err)
				}
				return code
			default:
				continue
			}
			if errors.Is(err, latency.ErrInvalidTransition) {
				console.Log(fmt.Sprintf("Not now: %v", err))
				continue
			}
			code = exitCode(err)
		}
	}
}
