package effect

import (
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// DirectSettings give the channel count the effect is created for.
type DirectSettings struct {
	NumChannels int
}

// Transmission is the fraction of sound passing through an occluder.
type Transmission struct {
	Type native.TransmissionType
	// Low, mid and high band values. Frequency-independent transmission
	// uses only the first.
	Bands [3]float32
}

// DirectParams select which direct-path terms are applied. A nil field is
// not applied.
type DirectParams struct {
	DistanceAttenuation *float32
	AirAbsorption       *[3]float32
	Directivity         *float32
	Occlusion           *float32
	Transmission        *Transmission
}

func (p DirectParams) toNative() native.DirectEffectParams {
	var np native.DirectEffectParams
	if p.DistanceAttenuation != nil {
		np.Flags |= native.DirectApplyDistanceAttenuation
		np.DistanceAttenuation = *p.DistanceAttenuation
	}
	if p.AirAbsorption != nil {
		np.Flags |= native.DirectApplyAirAbsorption
		np.AirAbsorption = *p.AirAbsorption
	}
	if p.Directivity != nil {
		np.Flags |= native.DirectApplyDirectivity
		np.Directivity = *p.Directivity
	}
	if p.Occlusion != nil {
		np.Flags |= native.DirectApplyOcclusion
		np.Occlusion = *p.Occlusion
	}
	if p.Transmission != nil {
		np.Flags |= native.DirectApplyTransmission
		np.TransmissionType = p.Transmission.Type
		np.Transmission = p.Transmission.Bands
	}
	return np
}

// Direct applies distance attenuation, air absorption, directivity and
// occlusion to an n-channel signal.
type Direct struct {
	*core
	ch ChannelRequirement
}

func NewDirect(ctx *spatial.Context, audio spatial.AudioSettings, settings DirectSettings) (*Direct, error) {
	if settings.NumChannels <= 0 {
		return nil, spatial.Errorf(spatial.KindShapeMismatch, "create direct effect", "channel count must be positive, got %d", settings.NumChannels)
	}
	ns := native.DirectEffectSettings{NumChannels: int32(settings.NumChannels)}
	c, err := newCore(ctx, native.EffectDirect, audio, unsafe.Pointer(&ns))
	if err != nil {
		return nil, err
	}
	return &Direct{core: c, ch: Exactly(settings.NumChannels)}, nil
}

func (e *Direct) Requirements(DirectParams) (in, out ChannelRequirement) {
	return e.ch, e.ch
}

func (e *Direct) Apply(p DirectParams, in, out *audiobuf.Buffer) (TailState, error) {
	np := p.toNative()
	return e.apply(unsafe.Pointer(&np), e.ch, e.ch, in, out)
}

func (e *Direct) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(e.ch, out)
}
