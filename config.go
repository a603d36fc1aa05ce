//go:build !windows

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cbrunnkvist/draglat/sim"
)

// fileConfig is the on-disk form of Config. Unset fields leave the
// profile or default value alone.
type fileConfig struct {
	Profile     string `toml:"profile" yaml:"profile" json:"profile"`
	Latency     string `toml:"latency" yaml:"latency" json:"latency"`
	Jitter      string `toml:"jitter" yaml:"jitter" json:"jitter"`
	Duration    string `toml:"duration" yaml:"duration" json:"duration"`
	Seed        *int64 `toml:"seed" yaml:"seed" json:"seed"`
	SyncTimeout string `toml:"sync_timeout" yaml:"sync_timeout" json:"sync_timeout"`
	Axis        string `toml:"axis" yaml:"axis" json:"axis"`
	Raw         *bool  `toml:"raw" yaml:"raw" json:"raw"`
	LogLevel    string `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat   string `toml:"log_format" yaml:"log_format" json:"log_format"`

	Panel panelConfig `toml:"panel" yaml:"panel" json:"panel"`
}

// panelConfig overrides the simulated panel and stroke.
type panelConfig struct {
	SampleInterval string   `toml:"sample_interval" yaml:"sample_interval" json:"sample_interval"`
	History        *int     `toml:"history" yaml:"history" json:"history"`
	Period         string   `toml:"period" yaml:"period" json:"period"`
	Amplitude      *float64 `toml:"amplitude" yaml:"amplitude" json:"amplitude"`
	BeamWidth      *float64 `toml:"beam_width" yaml:"beam_width" json:"beam_width"`
}

// loadConfigFile reads a config file, choosing the decoder by extension.
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	fc := &fileConfig{}
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), fc); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .json)", ext)
	}
	return fc, nil
}

// apply copies the set fields of fc into cfg.
func (fc *fileConfig) apply(cfg *Config) error {
	for _, d := range []struct {
		value    string
		flagName string
		dst      *time.Duration
	}{
		{fc.Latency, "latency", &cfg.Sim.Latency},
		{fc.Jitter, "jitter", &cfg.Sim.Jitter},
		{fc.Duration, "duration", &cfg.Duration},
		{fc.SyncTimeout, "sync_timeout", &cfg.SyncTimeout},
		{fc.Panel.SampleInterval, "panel.sample_interval", &cfg.Sim.SampleInterval},
		{fc.Panel.Period, "panel.period", &cfg.Sim.Period},
	} {
		if err := parseDuration(d.value, d.flagName, d.dst); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if fc.Seed != nil {
		cfg.Sim.Seed = *fc.Seed
	}
	if fc.Axis != "" {
		cfg.Axis = fc.Axis
	}
	if fc.Raw != nil {
		cfg.Raw = *fc.Raw
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.Panel.History != nil {
		cfg.Sim.History = *fc.Panel.History
	}
	if fc.Panel.Amplitude != nil {
		cfg.Sim.Amplitude = *fc.Panel.Amplitude
	}
	if fc.Panel.BeamWidth != nil {
		cfg.Sim.BeamWidth = *fc.Panel.BeamWidth
	}
	return nil
}

// applyProfile replaces the simulated panel with a named preset.
func applyProfile(cfg *Config, name string) error {
	p, ok := sim.Profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile: %s", name)
	}
	cfg.Profile = name
	seed := cfg.Sim.Seed
	cfg.Sim = p
	cfg.Sim.Seed = seed
	return nil
}
