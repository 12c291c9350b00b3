package effect

import (
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// BinauralSettings configure NewBinaural.
type BinauralSettings struct {
	HRTF *spatial.HRTF
}

// BinauralParams are applied per frame.
type BinauralParams struct {
	// Direction points from the listener to the source.
	Direction     Vector3
	Interpolation native.HRTFInterpolation
	// SpatialBlend of 0 passes audio through, 1 fully spatializes it.
	SpatialBlend float32
	// HRTF defaults to the one the effect was created with.
	HRTF *spatial.HRTF
	// PeakDelays receives the left and right ear delays when non-nil. It
	// must have length 2.
	PeakDelays []float32
}

// Binaural renders a mono or stereo source to two ears through an HRTF.
type Binaural struct {
	*core
	hrtf *spatial.HRTF
}

var binauralIn, binauralOut = Between(1, 2), Exactly(2)

// NewBinaural creates a binaural effect. The HRTF is borrowed and must
// outlive the effect.
func NewBinaural(ctx *spatial.Context, audio spatial.AudioSettings, settings BinauralSettings) (*Binaural, error) {
	ns := native.BinauralEffectSettings{HRTF: rawOrZero(settings.HRTF)}
	c, err := newCore(ctx, native.EffectBinaural, audio, unsafe.Pointer(&ns))
	if err != nil {
		return nil, err
	}
	return &Binaural{core: c, hrtf: settings.HRTF}, nil
}

func (e *Binaural) Requirements(BinauralParams) (in, out ChannelRequirement) {
	return binauralIn, binauralOut
}

// Apply spatializes one frame.
func (e *Binaural) Apply(p BinauralParams, in, out *audiobuf.Buffer) (TailState, error) {
	hrtf := p.HRTF
	if hrtf == nil {
		hrtf = e.hrtf
	}
	np := native.BinauralEffectParams{
		Direction:     p.Direction,
		Interpolation: p.Interpolation,
		SpatialBlend:  p.SpatialBlend,
		HRTF:          rawOrZero(hrtf),
	}
	var pins []any
	if p.PeakDelays != nil {
		if len(p.PeakDelays) != 2 {
			return TailComplete, spatial.Errorf(spatial.KindShapeMismatch, e.op(), "peak delays hold %d values, want 2", len(p.PeakDelays))
		}
		np.PeakDelays = &p.PeakDelays[0]
		pins = append(pins, np.PeakDelays)
	}
	return e.apply(unsafe.Pointer(&np), binauralIn, binauralOut, in, out, pins...)
}

// DrainTail emits one frame of tail into a stereo out.
func (e *Binaural) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(binauralOut, out)
}
