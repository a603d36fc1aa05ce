//go:build !windows

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cbrunnkvist/draglat/latency"
)

// watchDebounce coalesces the burst of events a single save produces.
const watchDebounce = 100 * time.Millisecond

// runAnalyze analyzes a raw event dump once, or on every change with --watch.
func runAnalyze(ctx context.Context, cfg *Config, logger *slog.Logger, out io.Writer) int {
	if len(cfg.Args) != 1 {
		fmt.Fprintln(os.Stderr, "error: analyze needs exactly one file")
		return exitUsage
	}
	path := cfg.Args[0]
	axis, _ := parseAxis(cfg.Axis)
	sink := newConsoleSink(out)

	_, err := analyzeFile(path, axis, sink)
	code := analyzeExit(err)
	if code == exitUsage {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	if !cfg.Watch {
		return code
	}

	err = watchFile(ctx, path, logger, func() {
		sink.Log(fmt.Sprintf("## %s changed, analyzing again", filepath.Base(path)))
		_, err := analyzeFile(path, axis, sink)
		if code = analyzeExit(err); code == exitUsage {
			logger.Warn("cannot analyze file", "path", path, "error", err)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	return code
}

func analyzeExit(err error) int {
	if err == nil {
		return exitOK
	}
	return exitCode(err)
}

// analyzeFile replays a raw dump through fresh buffers and the pipeline.
func analyzeFile(path string, axis latency.Axis, sink latency.LogSink) (latency.Estimate, error) {
	f, err := os.Open(path)
	if err != nil {
		return latency.Estimate{}, err
	}
	defer f.Close()

	touches, triggers, err := latency.ParseRawData(f)
	if err != nil {
		return latency.Estimate{}, fmt.Errorf("%s: %w", path, err)
	}

	buffers := latency.NewEventBuffers()
	buffers.RecordTouch(touches...)
	for _, ev := range triggers {
		buffers.RecordTrigger(ev)
	}
	buffers.Freeze()
	touches, triggers = buffers.Snapshot()

	sink.Log(fmt.Sprintf("Recorded %d laser events and %d touch events.", len(triggers), len(touches)))
	p := latency.Pipeline{
		Axis:      axis,
		Estimator: latency.NewEstimator(latency.DefaultSearch()),
		Sink:      sink,
	}
	return p.Run(touches, triggers)
}

// watchFile calls onChange after each write to path until ctx ends.
func watchFile(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	logger.Debug("watching", "path", path)

	changed := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

		case <-changed:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
