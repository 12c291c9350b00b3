package effect

import (
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

type PanningSettings struct {
	SpeakerLayout SpeakerLayout
}

type PanningParams struct {
	Direction Vector3
}

// Panning pans a mono source across a speaker layout.
type Panning struct {
	*core
	out ChannelRequirement
}

func NewPanning(ctx *spatial.Context, audio spatial.AudioSettings, settings PanningSettings) (*Panning, error) {
	if err := settings.SpeakerLayout.validate("create panning effect"); err != nil {
		return nil, err
	}
	layout, pins := settings.SpeakerLayout.toNative()
	ns := native.PanningEffectSettings{SpeakerLayout: layout}
	c, err := newCore(ctx, native.EffectPanning, audio, unsafe.Pointer(&ns), pins...)
	if err != nil {
		return nil, err
	}
	return &Panning{core: c, out: Exactly(settings.SpeakerLayout.NumChannels())}, nil
}

func (e *Panning) Requirements(PanningParams) (in, out ChannelRequirement) {
	return Exactly(1), e.out
}

func (e *Panning) Apply(p PanningParams, in, out *audiobuf.Buffer) (TailState, error) {
	np := native.PanningEffectParams{Direction: p.Direction}
	return e.apply(unsafe.Pointer(&np), Exactly(1), e.out, in, out)
}

func (e *Panning) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(e.out, out)
}
