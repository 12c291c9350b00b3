package effect

import (
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

type VirtualSurroundSettings struct {
	SpeakerLayout SpeakerLayout
	HRTF          *spatial.HRTF
}

type VirtualSurroundParams struct {
	// HRTF defaults to the one the effect was created with.
	HRTF *spatial.HRTF
}

// VirtualSurround renders a multichannel bed binaurally, placing one
// virtual speaker per input channel.
type VirtualSurround struct {
	*core
	hrtf *spatial.HRTF
	in   ChannelRequirement
}

func NewVirtualSurround(ctx *spatial.Context, audio spatial.AudioSettings, settings VirtualSurroundSettings) (*VirtualSurround, error) {
	if err := settings.SpeakerLayout.validate("create virtual surround effect"); err != nil {
		return nil, err
	}
	layout, pins := settings.SpeakerLayout.toNative()
	ns := native.VirtualSurroundEffectSettings{SpeakerLayout: layout, HRTF: rawOrZero(settings.HRTF)}
	c, err := newCore(ctx, native.EffectVirtualSurround, audio, unsafe.Pointer(&ns), pins...)
	if err != nil {
		return nil, err
	}
	return &VirtualSurround{core: c, hrtf: settings.HRTF, in: Exactly(settings.SpeakerLayout.NumChannels())}, nil
}

func (e *VirtualSurround) Requirements(VirtualSurroundParams) (in, out ChannelRequirement) {
	return e.in, Exactly(2)
}

func (e *VirtualSurround) Apply(p VirtualSurroundParams, in, out *audiobuf.Buffer) (TailState, error) {
	hrtf := p.HRTF
	if hrtf == nil {
		hrtf = e.hrtf
	}
	np := native.VirtualSurroundEffectParams{HRTF: rawOrZero(hrtf)}
	return e.apply(unsafe.Pointer(&np), e.in, Exactly(2), in, out)
}

func (e *VirtualSurround) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(Exactly(2), out)
}
