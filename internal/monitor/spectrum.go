// SPDX-License-Identifier: MIT
package monitor

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"nimbus/pkg/bitint"
)

// Spectrum computes Hann-windowed magnitude spectra of one channel.
type Spectrum struct {
	size       int
	sampleRate float64
	fft        *fourier.FFT
	window     []float64
	input      []float64
	coeffs     []complex128

	mu        sync.Mutex // guards magnitude against Snapshot
	magnitude []float64
}

// NewSpectrum pre-allocates every buffer for an FFT of size points, which
// must be a power of two.
func NewSpectrum(size int, sampleRate float64) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("spectrum size must be a power of two, got %d", size)
	}
	window := make([]float64, size)
	for i := range size {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	bins := size/2 + 1
	return &Spectrum{
		size:       size,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(size),
		window:     window,
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
	}, nil
}

// Size returns the FFT length.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of magnitude bins, size/2+1.
func (s *Spectrum) Bins() int { return len(s.magnitude) }

// Process analyses samples. Shorter input is zero-padded and longer input
// is truncated to the FFT size.
func (s *Spectrum) Process(samples []float32) {
	for i := range s.size {
		if i < len(samples) {
			s.input[i] = float64(samples[i]) * s.window[i]
		} else {
			s.input[i] = 0
		}
	}
	s.fft.Coefficients(s.coeffs, s.input)

	s.mu.Lock()
	for i, c := range s.coeffs {
		s.magnitude[i] = cmplx.Abs(c)
	}
	s.mu.Unlock()
}

// Magnitudes copies the latest spectrum into dst, which must hold Bins
// values.
func (s *Spectrum) Magnitudes(dst []float64) error {
	if len(dst) != len(s.magnitude) {
		return fmt.Errorf("magnitude buffer has %d bins, want %d", len(dst), len(s.magnitude))
	}
	s.mu.Lock()
	copy(dst, s.magnitude)
	s.mu.Unlock()
	return nil
}

// Snapshot appends the latest magnitudes as float32.
func (s *Spectrum) Snapshot(dst []float32) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.magnitude {
		dst = append(dst, float32(m))
	}
	return dst
}

// Frequency returns the centre frequency in Hz of bin i.
func (s *Spectrum) Frequency(i int) float64 {
	if i < 0 || i >= len(s.magnitude) {
		return 0
	}
	return s.fft.Freq(i) * s.sampleRate
}
