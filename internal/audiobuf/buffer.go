// SPDX-License-Identifier: MIT

// Package audiobuf provides the deinterleaved float32 buffer handed to
// effects, along with a pointer table the native runtime can read.
package audiobuf

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"gonum.org/v1/gonum/blas/blas32"

	"nimbus/internal/spatial"
)

// Buffer stores channels*samples float32 values channel-major in a single
// allocation and keeps a table of per-channel pointers into it.
type Buffer struct {
	channels int
	samples  int
	data     []float32
	table    []*float32
	borrowed atomic.Bool
}

// WithShape allocates a zeroed buffer. It panics on negative sizes.
func WithShape(channels, samples int) *Buffer {
	if channels < 0 || samples < 0 {
		panic(fmt.Sprintf("audiobuf: negative shape %dx%d", channels, samples))
	}
	b := &Buffer{}
	b.alloc(channels, samples)
	return b
}

func (b *Buffer) alloc(channels, samples int) {
	b.channels, b.samples = channels, samples
	b.data = make([]float32, channels*samples)
	b.table = buildTable(b.data, channels, samples, 0)
}

// buildTable returns one pointer per channel. Entry i points at
// data[i*stride+offset]; with no samples every entry is nil.
func buildTable(data []float32, channels, stride, offset int) []*float32 {
	table := make([]*float32, channels)
	if len(data) == 0 {
		return table
	}
	base := unsafe.Pointer(unsafe.SliceData(data))
	for i := range table {
		table[i] = (*float32)(unsafe.Add(base, (i*stride+offset)*4))
	}
	return table
}

// FromChannels copies equal-length channel runs into a new buffer.
func FromChannels(runs [][]float32) (*Buffer, error) {
	samples := 0
	if len(runs) > 0 {
		samples = len(runs[0])
	}
	for i, r := range runs {
		if len(r) != samples {
			return nil, spatial.Errorf(spatial.KindShapeMismatch, "buffer from channels",
				"channel %d has %d samples, want %d", i, len(r), samples)
		}
	}
	b := WithShape(len(runs), samples)
	for i, r := range runs {
		copy(b.Channel(i), r)
	}
	return b, nil
}

// FromInterleaved builds a buffer from frame-major samples.
func FromInterleaved(in []float32, channels int) (*Buffer, error) {
	if channels <= 0 {
		if len(in) == 0 {
			return WithShape(0, 0), nil
		}
		return nil, spatial.Errorf(spatial.KindShapeMismatch, "buffer from interleaved",
			"%d samples with no channels", len(in))
	}
	if len(in)%channels != 0 {
		return nil, spatial.Errorf(spatial.KindShapeMismatch, "buffer from interleaved",
			"%d samples do not divide into %d channels", len(in), channels)
	}
	b := WithShape(channels, len(in)/channels)
	b.deinterleave(in)
	return b, nil
}

func (b *Buffer) NumChannels() int { return b.channels }
func (b *Buffer) NumSamples() int  { return b.samples }

// Data returns the channel-major storage. The slice is invalidated by Resize.
func (b *Buffer) Data() ([]float32, error) {
	if err := b.guard("data"); err != nil {
		return nil, err
	}
	return b.data, nil
}

// guard refuses op while a view of b is live.
func (b *Buffer) guard(op string) error {
	if b.borrowed.Load() {
		return &spatial.Error{Kind: spatial.KindBorrowed, Op: op}
	}
	return nil
}

// Channel returns channel i as a slice aliasing the storage.
func (b *Buffer) Channel(i int) []float32 {
	return b.data[i*b.samples : (i+1)*b.samples : (i+1)*b.samples]
}

// Channels returns a slice per channel, all aliasing the storage.
func (b *Buffer) Channels() [][]float32 {
	out := make([][]float32, b.channels)
	for i := range out {
		out[i] = b.Channel(i)
	}
	return out
}

// Interleave writes frame-major samples to out, which must hold exactly
// channels*samples values.
func (b *Buffer) Interleave(out []float32) error {
	if err := b.guard("interleave"); err != nil {
		return err
	}
	if len(out) != len(b.data) {
		return spatial.Errorf(spatial.KindShapeMismatch, "interleave",
			"output holds %d samples, want %d", len(out), len(b.data))
	}
	ch, n := b.channels, b.samples
	for c := range ch {
		src := b.data[c*n : (c+1)*n]
		for f, v := range src {
			out[f*ch+c] = v
		}
	}
	return nil
}

// Deinterleave is the inverse of Interleave.
func (b *Buffer) Deinterleave(in []float32) error {
	if err := b.guard("deinterleave"); err != nil {
		return err
	}
	if len(in) != len(b.data) {
		return spatial.Errorf(spatial.KindShapeMismatch, "deinterleave",
			"input holds %d samples, want %d", len(in), len(b.data))
	}
	b.deinterleave(in)
	return nil
}

func (b *Buffer) deinterleave(in []float32) {
	ch, n := b.channels, b.samples
	for c := range ch {
		dst := b.data[c*n : (c+1)*n]
		for f := range dst {
			dst[f] = in[f*ch+c]
		}
	}
}

// Resize changes the per-channel sample count, keeping the common prefix of
// every channel. It is refused while the buffer is borrowed.
func (b *Buffer) Resize(samples int) error {
	if samples < 0 {
		return spatial.Errorf(spatial.KindShapeMismatch, "resize", "negative sample count %d", samples)
	}
	if err := b.guard("resize"); err != nil {
		return err
	}
	old, oldSamples := b.data, b.samples
	b.alloc(b.channels, samples)
	keep := min(samples, oldSamples)
	for c := range b.channels {
		copy(b.data[c*samples:c*samples+keep], old[c*oldSamples:c*oldSamples+keep])
	}
	return nil
}

// Zero clears every sample.
func (b *Buffer) Zero() error {
	if err := b.guard("zero"); err != nil {
		return err
	}
	clear(b.data)
	return nil
}

func vec(x []float32) blas32.Vector {
	return blas32.Vector{N: len(x), Data: x, Inc: 1}
}

// Mix adds src into b. Shapes must match and neither buffer may be borrowed.
func (b *Buffer) Mix(src *Buffer) error {
	if err := b.guard("mix"); err != nil {
		return err
	}
	if err := src.guard("mix"); err != nil {
		return err
	}
	if src.channels != b.channels || src.samples != b.samples {
		return spatial.Errorf(spatial.KindShapeMismatch, "mix",
			"source is %dx%d, destination is %dx%d", src.channels, src.samples, b.channels, b.samples)
	}
	if len(b.data) > 0 {
		blas32.Axpy(1, vec(src.data), vec(b.data))
	}
	return nil
}

// Downmix writes the average of b's channels into the mono buffer dst.
func (b *Buffer) Downmix(dst *Buffer) error {
	if err := b.guard("downmix"); err != nil {
		return err
	}
	if dst.channels != 1 || dst.samples != b.samples {
		return spatial.Errorf(spatial.KindShapeMismatch, "downmix",
			"destination is %dx%d, want 1x%d", dst.channels, dst.samples, b.samples)
	}
	if err := dst.Zero(); err != nil {
		return err
	}
	if b.channels == 0 || b.samples == 0 {
		return nil
	}
	out := vec(dst.data)
	g := 1 / float32(b.channels)
	for c := range b.channels {
		blas32.Axpy(g, vec(b.Channel(c)), out)
	}
	return nil
}

// Scale multiplies every sample by g.
func (b *Buffer) Scale(g float32) error {
	if err := b.guard("scale"); err != nil {
		return err
	}
	if len(b.data) > 0 {
		blas32.Scal(g, vec(b.data))
	}
	return nil
}

// Peak returns the largest absolute sample of channel c.
func (b *Buffer) Peak(c int) (float32, error) {
	if err := b.guard("peak"); err != nil {
		return 0, err
	}
	ch := b.Channel(c)
	if len(ch) == 0 {
		return 0, nil
	}
	v := ch[blas32.Iamax(vec(ch))]
	if v < 0 {
		return -v, nil
	}
	return v, nil
}

// Frames returns the number of whole frameSize windows in the buffer.
func (b *Buffer) Frames(frameSize int) int {
	if frameSize <= 0 {
		return 0
	}
	return b.samples / frameSize
}
