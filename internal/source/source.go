// Package source decodes audio files into channel-major float buffers.
package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"nimbus/internal/audiobuf"
	"nimbus/internal/log"
)

var sourceLog = log.Named("source")

// ErrUnsupported is returned for file extensions without a decoder.
var ErrUnsupported = errors.New("unsupported audio format")

// Audio is a decoded file. Samples are normalized to [-1, 1].
type Audio struct {
	Buffer     *audiobuf.Buffer
	SampleRate int
	Format     string
}

// Duration returns the length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(a.Buffer.NumSamples()) / float64(a.SampleRate)
}

type decoder func(r io.ReadSeeker) (*Audio, error)

var decoders = map[string]decoder{
	"wav": decodeWAV,
	"mp3": decodeMP3,
	"ogg": decodeOgg,
}

// Formats lists the extensions Open understands.
func Formats() []string { return []string{"mp3", "ogg", "wav"} }

// Open decodes the file at path, choosing the decoder by extension.
func Open(path string) (*Audio, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := decoders[format]; !ok {
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnsupported, format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	a, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sourceLog.Infof("decoded %s: %d ch, %d Hz, %.2fs", path, a.Buffer.NumChannels(), a.SampleRate, a.Duration())
	return a, nil
}

// Decode reads r as format ("wav", "mp3" or "ogg").
func Decode(r io.ReadSeeker, format string) (*Audio, error) {
	dec, ok := decoders[format]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupported, format)
	}
	a, err := dec(r)
	if err != nil {
		return nil, err
	}
	a.Format = format
	return a, nil
}

func decodeWAV(r io.ReadSeeker) (*Audio, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("failed to decode WAV: invalid file")
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("failed to decode WAV: unsupported bit depth %d", d.BitDepth)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	channels := int(d.NumChans)
	if channels == 0 {
		return nil, fmt.Errorf("failed to decode WAV: no channels")
	}

	scale := 1 / float32(int64(1)<<(d.BitDepth-1))
	norm := func(v int) float32 { return float32(v) * scale }
	if d.BitDepth == 8 {
		// 8-bit WAV is unsigned.
		norm = func(v int) float32 { return float32(v-128) / 128 }
	}
	interleaved := make([]float32, len(pcm.Data)-len(pcm.Data)%channels)
	for i := range interleaved {
		interleaved[i] = norm(pcm.Data[i])
	}
	buf, err := audiobuf.FromInterleaved(interleaved, channels)
	if err != nil {
		return nil, err
	}
	return &Audio{Buffer: buf, SampleRate: int(d.SampleRate)}, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
func decodeMP3(r io.ReadSeeker) (*Audio, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	pcm := make([]int16, len(raw)/4*2)
	if err := binary.Read(bytes.NewReader(raw[:len(pcm)*2]), binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	interleaved := make([]float32, len(pcm))
	for i, v := range pcm {
		interleaved[i] = float32(v) / 32768
	}
	buf, err := audiobuf.FromInterleaved(interleaved, 2)
	if err != nil {
		return nil, err
	}
	return &Audio{Buffer: buf, SampleRate: d.SampleRate()}, nil
}

func decodeOgg(r io.ReadSeeker) (*Audio, error) {
	interleaved, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}
	buf, err := audiobuf.FromInterleaved(interleaved[:len(interleaved)-len(interleaved)%format.Channels], format.Channels)
	if err != nil {
		return nil, err
	}
	return &Audio{Buffer: buf, SampleRate: format.SampleRate}, nil
}

// Mono returns buf downmixed to one channel. A mono buffer is returned as
// is.
func Mono(buf *audiobuf.Buffer) *audiobuf.Buffer {
	if buf.NumChannels() == 1 {
		return buf
	}
	dst := audiobuf.WithShape(1, buf.NumSamples())
	if err := buf.Downmix(dst); err != nil {
		// Downmix only fails on a shape mismatch, which dst rules out.
		panic(err)
	}
	return dst
}
