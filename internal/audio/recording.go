package audio

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder is a sink writing rendered frames to a PCM WAV file. Float
// samples are clipped to [-1, 1] and scaled to the bit depth.
type Recorder struct {
	sampleRate int
	channels   int
	bitDepth   int
	scale      float64

	isRecording atomic.Int32
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer
	written     int // samples per channel
}

// NewRecorder returns a stopped recorder. bitDepth is 16, 24 or 32.
func NewRecorder(sampleRate, channels, bitDepth int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("recorder needs at least one channel, got %d", channels)
	}
	return &Recorder{
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
		scale:      float64(int64(1)<<(bitDepth-1) - 1),
	}, nil
}

// StartRecording creates filename and starts accepting frames.
func (r *Recorder) StartRecording(filename string) error {
	if r.isRecording.Load() == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, r.channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.channels,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
	}
	r.written = 0

	r.isRecording.Store(1)
	return nil
}

// WriteFrame encodes one interleaved frame. Frames arriving while stopped
// are ignored.
func (r *Recorder) WriteFrame(samples []float32, channels int) error {
	if r.isRecording.Load() == 0 || r.wavEncoder == nil {
		return nil
	}
	if channels != r.channels {
		return fmt.Errorf("recorder expects %d channels, got %d", r.channels, channels)
	}

	r.sampleBuf.Data = r.sampleBuf.Data[:0]
	for _, s := range samples {
		s = min(max(s, -1), 1)
		r.sampleBuf.Data = append(r.sampleBuf.Data, int(float64(s)*r.scale))
	}
	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write WAV frame: %w", err)
	}
	r.written += len(samples) / channels
	return nil
}

// Written returns the samples per channel encoded so far.
func (r *Recorder) Written() int { return r.written }

// StopRecording finalises the WAV header and closes the file.
func (r *Recorder) StopRecording() error {
	if r.isRecording.Load() == 0 {
		return nil
	}
	r.isRecording.Store(0)

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.StopRecording()
}
