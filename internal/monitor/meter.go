// Package monitor observes rendered audio: per-frame peak levels behind a
// noise gate and an optional magnitude spectrum, published over a
// transport.
package monitor

import (
	"math"
	"sync"

	"nimbus/internal/log"
	"nimbus/internal/transport"
)

var meterLog = log.Named("monitor")

// Level is the message sent for every frame that passes the gate.
type Level struct {
	Session  string    `json:"session,omitempty"`
	Frame    int       `json:"frame"`
	Peaks    []float32 `json:"peaks"`
	Spectrum []float32 `json:"spectrum,omitempty"`
}

// Meter is a render sink measuring channel peaks. Frames the gate closes
// on are counted but not sent.
type Meter struct {
	transport transport.Transport
	gate      *Gate
	spectrum  *Spectrum
	session   string

	mono   []float32
	frames int
	gated  int

	mu     sync.Mutex // guards latest against Snapshot
	latest []float32
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithSpectrum attaches a spectrum of the first channel to every Level.
func WithSpectrum(s *Spectrum) MeterOption {
	return func(m *Meter) { m.spectrum = s }
}

// WithSession tags every Level with a render session id.
func WithSession(id string) MeterOption {
	return func(m *Meter) { m.session = id }
}

// NewMeter sends levels over t. A nil gate lets every frame through.
func NewMeter(t transport.Transport, gate *Gate, opts ...MeterOption) *Meter {
	if gate == nil {
		gate = NewGate(0)
		gate.Disable()
	}
	m := &Meter{transport: t, gate: gate}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WriteFrame measures one interleaved frame.
func (m *Meter) WriteFrame(samples []float32, channels int) error {
	frame := m.frames
	m.frames++
	if !m.gate.Open(samples) {
		m.gated++
		return nil
	}

	peaks := make([]float32, channels)
	for i, s := range samples {
		ch := i % channels
		peaks[ch] = max(peaks[ch], float32(math.Abs(float64(s))))
	}
	m.mu.Lock()
	m.latest = append(m.latest[:0], peaks...)
	m.mu.Unlock()

	lvl := Level{Session: m.session, Frame: frame, Peaks: peaks}
	if m.spectrum != nil {
		m.mono = m.mono[:0]
		for i := 0; i < len(samples); i += channels {
			m.mono = append(m.mono, samples[i])
		}
		m.spectrum.Process(m.mono)
		lvl.Spectrum = m.spectrum.Snapshot(nil)
	}
	if m.transport == nil {
		return nil
	}
	return m.transport.Send(lvl)
}

// Snapshot appends the peaks of the last frame that passed the gate.
func (m *Meter) Snapshot(dst []float32) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(dst, m.latest...)
}

// Frames returns the number of frames seen.
func (m *Meter) Frames() int { return m.frames }

// Gated returns the number of frames the gate held back.
func (m *Meter) Gated() int { return m.gated }

// Close logs the meter totals. The transport is owned by the caller.
func (m *Meter) Close() error {
	meterLog.Infof("metered %d frames, %d gated", m.frames, m.gated)
	return nil
}
