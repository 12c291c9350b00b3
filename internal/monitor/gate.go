// SPDX-License-Identifier: MIT
package monitor

import "math"

const signBit = 1 << 31

// Gate is a noise gate over float samples in [-1, 1]. A frame passes when
// its absolute peak exceeds the threshold.
type Gate struct {
	enabled   bool
	threshold uint32 // bit pattern of the non-negative threshold
}

// NewGate returns an enabled gate.
func NewGate(threshold float32) *Gate {
	g := &Gate{enabled: true}
	g.SetThreshold(threshold)
	return g
}

func (g *Gate) Enable()  { g.enabled = true }
func (g *Gate) Disable() { g.enabled = false }

// SetThreshold adjusts the gate threshold. The value is clamped to 0..1
// where 0 is always open and 1 is always closed for in-range signals.
func (g *Gate) SetThreshold(threshold float32) {
	threshold = min(max(threshold, 0), 1)
	g.threshold = math.Float32bits(threshold)
}

// Threshold returns the current threshold in the range 0..1.
func (g *Gate) Threshold() float32 {
	return math.Float32frombits(g.threshold)
}

// Open reports whether samples pass the gate. A disabled gate is always
// open.
//
// Clearing the sign bit gives |x|, and for non-negative IEEE floats the bit
// patterns order the same way as the values, so the peak is tracked on
// integers without branching on the sign.
func (g *Gate) Open(samples []float32) bool {
	if !g.enabled {
		return true
	}
	var peak uint32
	for _, s := range samples {
		peak = max(peak, math.Float32bits(s)&^signBit)
	}
	return peak > g.threshold
}
