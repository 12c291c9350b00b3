package spatial

import (
	"nimbus/internal/native"
)

// AudioSettings are the processing parameters shared by every effect and
// HRTF created against them.
type AudioSettings struct {
	SamplingRate int
	FrameSize    int
}

// DefaultAudioSettings returns 48 kHz with 1024-sample frames.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{SamplingRate: 48000, FrameSize: 1024}
}

// Validate rejects non-positive rates and frame sizes.
func (s AudioSettings) Validate() error {
	if s.SamplingRate <= 0 {
		return Errorf(KindShapeMismatch, "audio settings", "sampling rate must be positive, got %d", s.SamplingRate)
	}
	if s.FrameSize <= 0 {
		return Errorf(KindShapeMismatch, "audio settings", "frame size must be positive, got %d", s.FrameSize)
	}
	return nil
}

// Native converts s to the ABI struct.
func (s AudioSettings) Native() native.AudioSettings {
	return native.AudioSettings{SamplingRate: int32(s.SamplingRate), FrameSize: int32(s.FrameSize)}
}
