package config

import "time"

// Defaults and limits for the renderer configuration.
const (
	DefaultLogLevel        = "info"
	DefaultBackend         = BackendNative
	DefaultSampleRate      = 48000
	DefaultFrameSize       = 1024
	DefaultOutputDevice    = MinDeviceID
	DefaultHRTFVolume      = 1.0
	DefaultEffect          = "binaural"
	DefaultSpeakerLayout   = "stereo"
	DefaultAmbisonicsOrder = 1
	DefaultBitDepth        = 16
	DefaultUDPInterval     = 33 * time.Millisecond // ~30Hz
	DefaultSpectrumSize    = 1024

	MinDeviceID   = -1 // system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxFrameSize  = 8192
)

// Backends selects the implementation behind the native ABI.
const (
	BackendNative   = "native"
	BackendEmulator = "emulator"
)

// Effect kinds accepted by effect.kind.
var EffectKinds = []string{
	"binaural",
	"panning",
	"virtual_surround",
	"direct",
	"ambisonics_binaural",
	"ambisonics_decode",
	"ambisonics_panning",
}

// Bit depths the WAV recorder can write.
var BitDepths = []int{16, 24, 32}

// Config is the renderer configuration, loaded from YAML.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Source   string        `yaml:"source"` // input audio file
	Library  LibraryConfig `yaml:"library"`
	Audio    AudioConfig   `yaml:"audio"`
	HRTF     HRTFConfig    `yaml:"hrtf"`
	Effect   EffectConfig  `yaml:"effect"`
	Output   OutputConfig  `yaml:"output"`
	Monitor  MonitorConfig `yaml:"monitor"`
}

// LibraryConfig selects and configures the spatial audio runtime.
type LibraryConfig struct {
	Backend    string `yaml:"backend"`    // native or emulator
	Path       string `yaml:"path"`       // explicit shared library path
	Validation bool   `yaml:"validation"` // enable API call validation in the runtime
}

// AudioConfig holds the render format and playback device settings.
type AudioConfig struct {
	SampleRate   int  `yaml:"sample_rate"`
	FrameSize    int  `yaml:"frame_size"`    // samples per channel per frame, power of two
	OutputDevice int  `yaml:"output_device"` // PortAudio device index, -1 for default
	LowLatency   bool `yaml:"low_latency"`
	Playback     bool `yaml:"playback"` // play the render through PortAudio
}

// HRTFConfig selects the HRTF the binaural effects use.
type HRTFConfig struct {
	Volume        float32 `yaml:"volume"`
	SOFAFile      string  `yaml:"sofa_file"` // empty for the built-in HRTF
	Normalization bool    `yaml:"normalization"`
}

// EffectConfig picks the effect to render with and its parameters.
type EffectConfig struct {
	Kind                string  `yaml:"kind"`
	SpeakerLayout       string  `yaml:"speaker_layout"`
	AmbisonicsOrder     int     `yaml:"ambisonics_order"`
	X                   float32 `yaml:"x"`
	Y                   float32 `yaml:"y"`
	Z                   float32 `yaml:"z"`
	SpatialBlend        float32 `yaml:"spatial_blend"`
	DistanceAttenuation float32 `yaml:"distance_attenuation"` // 0 disables the term
}

// OutputConfig controls the WAV recorder.
type OutputConfig struct {
	File     string `yaml:"file"` // empty disables recording
	BitDepth int    `yaml:"bit_depth"`
}

// MonitorConfig controls the live meter and metrics endpoints. Empty
// addresses disable the matching endpoint.
type MonitorConfig struct {
	WebSocketAddress string        `yaml:"websocket_address"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPInterval      time.Duration `yaml:"udp_interval"`
	MetricsAddress   string        `yaml:"metrics_address"`
	Spectrum         int           `yaml:"spectrum"` // FFT size, 0 disables the spectrum
	GateThreshold    float32       `yaml:"gate_threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Library: LibraryConfig{
			Backend: DefaultBackend,
		},
		Audio: AudioConfig{
			SampleRate:   DefaultSampleRate,
			FrameSize:    DefaultFrameSize,
			OutputDevice: DefaultOutputDevice,
		},
		HRTF: HRTFConfig{
			Volume: DefaultHRTFVolume,
		},
		Effect: EffectConfig{
			Kind:            DefaultEffect,
			SpeakerLayout:   DefaultSpeakerLayout,
			AmbisonicsOrder: DefaultAmbisonicsOrder,
			Z:               -1, // straight ahead
			SpatialBlend:    1,
		},
		Output: OutputConfig{
			BitDepth: DefaultBitDepth,
		},
		Monitor: MonitorConfig{
			UDPInterval:   DefaultUDPInterval,
			GateThreshold: 0.001,
		},
	}
}
