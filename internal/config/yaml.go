// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nimbus/internal/log"
	"nimbus/pkg/bitint"
)

// DotEnvFile is loaded, when present, before the environment overrides are
// applied. Variables already set in the environment win.
var DotEnvFile = ".env"

var speakerLayouts = []string{"mono", "stereo", "quad", "quadraphonic", "5.1", "surround51", "7.1", "surround71"}

var configLog = log.Named("config")

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it tries "nimbus.yaml" in the working directory and falls back to
// Default. The NIMBUS_* environment overrides are applied on top and the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"nimbus.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section for values the renderer cannot use.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is unknown", c.LogLevel)
	}

	switch c.Library.Backend {
	case BackendNative, BackendEmulator:
	default:
		return fmt.Errorf("library.backend must be %q or %q, got %q", BackendNative, BackendEmulator, c.Library.Backend)
	}

	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FrameSize) || c.Audio.FrameSize > MaxFrameSize {
		return fmt.Errorf("audio.frame_size must be a power of two no larger than %d, got %d", MaxFrameSize, c.Audio.FrameSize)
	}
	if c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio.output_device %d is invalid", c.Audio.OutputDevice)
	}

	if c.HRTF.Volume < 0 {
		return fmt.Errorf("hrtf.volume must not be negative, got %g", c.HRTF.Volume)
	}

	if !slices.Contains(EffectKinds, c.Effect.Kind) {
		return fmt.Errorf("effect.kind %q is not one of %v", c.Effect.Kind, EffectKinds)
	}
	if !slices.Contains(speakerLayouts, c.Effect.SpeakerLayout) {
		return fmt.Errorf("effect.speaker_layout %q is unknown", c.Effect.SpeakerLayout)
	}
	if c.Effect.AmbisonicsOrder < 0 || c.Effect.AmbisonicsOrder > 3 {
		return fmt.Errorf("effect.ambisonics_order must be in [0, 3], got %d", c.Effect.AmbisonicsOrder)
	}
	if c.Effect.SpatialBlend < 0 || c.Effect.SpatialBlend > 1 {
		return fmt.Errorf("effect.spatial_blend must be in [0, 1], got %g", c.Effect.SpatialBlend)
	}

	if !slices.Contains(BitDepths, c.Output.BitDepth) {
		return fmt.Errorf("output.bit_depth must be one of %v, got %d", BitDepths, c.Output.BitDepth)
	}

	if c.Monitor.UDPTargetAddress != "" && c.Monitor.UDPInterval <= 0 {
		return fmt.Errorf("monitor.udp_interval must be positive when a UDP target is set")
	}
	if c.Monitor.Spectrum != 0 && !bitint.IsPowerOfTwo(c.Monitor.Spectrum) {
		return fmt.Errorf("monitor.spectrum must be a power of two, got %d", c.Monitor.Spectrum)
	}
	if c.Monitor.GateThreshold < 0 || c.Monitor.GateThreshold > 1 {
		return fmt.Errorf("monitor.gate_threshold must be in [0, 1], got %g", c.Monitor.GateThreshold)
	}
	return nil
}

type envOverride struct {
	name  string
	apply func(c *Config, val string) error
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, val string) error {
		*dst(c) = val
		return nil
	}
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envOverrides = []envOverride{
	{"NIMBUS_LOG_LEVEL", stringVar(func(c *Config) *string { return &c.LogLevel })},
	{"NIMBUS_SOURCE", stringVar(func(c *Config) *string { return &c.Source })},
	{"NIMBUS_BACKEND", stringVar(func(c *Config) *string { return &c.Library.Backend })},
	{"NIMBUS_LIBRARY_PATH", stringVar(func(c *Config) *string { return &c.Library.Path })},
	{"NIMBUS_VALIDATION", boolVar(func(c *Config) *bool { return &c.Library.Validation })},
	{"NIMBUS_SAMPLE_RATE", intVar(func(c *Config) *int { return &c.Audio.SampleRate })},
	{"NIMBUS_FRAME_SIZE", intVar(func(c *Config) *int { return &c.Audio.FrameSize })},
	{"NIMBUS_OUTPUT_DEVICE", intVar(func(c *Config) *int { return &c.Audio.OutputDevice })},
	{"NIMBUS_PLAYBACK", boolVar(func(c *Config) *bool { return &c.Audio.Playback })},
	{"NIMBUS_SOFA_FILE", stringVar(func(c *Config) *string { return &c.HRTF.SOFAFile })},
	{"NIMBUS_EFFECT", stringVar(func(c *Config) *string { return &c.Effect.Kind })},
	{"NIMBUS_SPEAKER_LAYOUT", stringVar(func(c *Config) *string { return &c.Effect.SpeakerLayout })},
	{"NIMBUS_OUTPUT_FILE", stringVar(func(c *Config) *string { return &c.Output.File })},
	{"NIMBUS_BIT_DEPTH", intVar(func(c *Config) *int { return &c.Output.BitDepth })},
	{"NIMBUS_WEBSOCKET_ADDRESS", stringVar(func(c *Config) *string { return &c.Monitor.WebSocketAddress })},
	{"NIMBUS_UDP_TARGET_ADDRESS", stringVar(func(c *Config) *string { return &c.Monitor.UDPTargetAddress })},
	{"NIMBUS_UDP_INTERVAL", func(c *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		c.Monitor.UDPInterval = d
		return nil
	}},
	{"NIMBUS_METRICS_ADDRESS", stringVar(func(c *Config) *string { return &c.Monitor.MetricsAddress })},
}

// applyEnvOverrides copies every set NIMBUS_* variable into cfg. A value
// that does not parse is an error rather than silently ignored.
func (cfg *Config) applyEnvOverrides() error {
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(o.name)
		if !ok {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			return fmt.Errorf("%s=%q: %w", o.name, val, err)
		}
		configLog.Debugf("overriding from env %s=%s", o.name, val)
	}
	return nil
}
