package effect

import (
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// Ambisonic buffers carry (order+1)² channels in ACN order. Every
// ambisonics effect sizes its buffers for the MaxOrder it was created with;
// a lower per-frame Order leaves the higher channels unused.

func validMaxOrder(op string, order int) error {
	if order < 0 {
		return spatial.Errorf(spatial.KindOutOfBounds, op, "negative ambisonics order %d", order)
	}
	return nil
}

// --- Encode ---

type AmbisonicsEncodeSettings struct {
	MaxOrder int
}

type AmbisonicsEncodeParams struct {
	Direction Vector3
	Order     int
}

// AmbisonicsEncode encodes a mono source into a sound field.
type AmbisonicsEncode struct {
	*core
	maxOrder int
	out      ChannelRequirement
}

func NewAmbisonicsEncode(ctx *spatial.Context, audio spatial.AudioSettings, settings AmbisonicsEncodeSettings) (*AmbisonicsEncode, error) {
	const op = "create ambisonics encode effect"
	if err := validMaxOrder(op, settings.MaxOrder); err != nil {
		return nil, err
	}
	ns := native.AmbisonicsEncodeEffectSettings{MaxOrder: int32(settings.MaxOrder)}
	c, err := newCore(ctx, native.EffectAmbisonicsEncode, audio, unsafe.Pointer(&ns))
	if err != nil {
		return nil, err
	}
	return &AmbisonicsEncode{core: c, maxOrder: settings.MaxOrder, out: Exactly(ambisonicChannels(settings.MaxOrder))}, nil
}

func (e *AmbisonicsEncode) Requirements(AmbisonicsEncodeParams) (in, out ChannelRequirement) {
	return Exactly(1), e.out
}

func (e *AmbisonicsEncode) Apply(p AmbisonicsEncodeParams, in, out *audiobuf.Buffer) (TailState, error) {
	if err := checkOrder(e.op(), p.Order, e.maxOrder); err != nil {
		return TailComplete, err
	}
	np := native.AmbisonicsEncodeEffectParams{Direction: p.Direction, Order: int32(p.Order)}
	return e.apply(unsafe.Pointer(&np), Exactly(1), e.out, in, out)
}

func (e *AmbisonicsEncode) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(e.out, out)
}

// --- Decode ---

type AmbisonicsDecodeSettings struct {
	SpeakerLayout SpeakerLayout
	HRTF          *spatial.HRTF
	MaxOrder      int
}

type AmbisonicsDecodeParams struct {
	Order int
	// HRTF defaults to the one the effect was created with.
	HRTF        *spatial.HRTF
	Orientation Orientation
	// Binaural renders to headphones instead of the speaker layout.
	Binaural bool
}

// AmbisonicsDecode renders a sound field to speakers or, binaurally, to
// headphones.
type AmbisonicsDecode struct {
	*core
	hrtf     *spatial.HRTF
	maxOrder int
	in       ChannelRequirement
	speakers ChannelRequirement
}

func NewAmbisonicsDecode(ctx *spatial.Context, audio spatial.AudioSettings, settings AmbisonicsDecodeSettings) (*AmbisonicsDecode, error) {
	const op = "create ambisonics decode effect"
	if err := validMaxOrder(op, settings.MaxOrder); err != nil {
		return nil, err
	}
	if err := settings.SpeakerLayout.validate(op); err != nil {
		return nil, err
	}
	layout, pins := settings.SpeakerLayout.toNative()
	ns := native.AmbisonicsDecodeEffectSettings{
		SpeakerLayout: layout,
		HRTF:          rawOrZero(settings.HRTF),
		MaxOrder:      int32(settings.MaxOrder),
	}
	c, err := newCore(ctx, native.EffectAmbisonicsDecode, audio, unsafe.Pointer(&ns), pins...)
	if err != nil {
		return nil, err
	}
	return &AmbisonicsDecode{
		core:     c,
		hrtf:     settings.HRTF,
		maxOrder: settings.MaxOrder,
		in:       Exactly(ambisonicChannels(settings.MaxOrder)),
		speakers: Exactly(settings.SpeakerLayout.NumChannels()),
	}, nil
}

func (e *AmbisonicsDecode) Requirements(p AmbisonicsDecodeParams) (in, out ChannelRequirement) {
	if p.Binaural {
		return e.in, Exactly(2)
	}
	return e.in, e.speakers
}

func (e *AmbisonicsDecode) Apply(p AmbisonicsDecodeParams, in, out *audiobuf.Buffer) (TailState, error) {
	if err := checkOrder(e.op(), p.Order, e.maxOrder); err != nil {
		return TailComplete, err
	}
	hrtf := p.HRTF
	if hrtf == nil {
		hrtf = e.hrtf
	}
	np := native.AmbisonicsDecodeEffectParams{
		Order:       int32(p.Order),
		HRTF:        rawOrZero(hrtf),
		Orientation: orientationOrIdentity(p.Orientation),
		Binaural:    native.BoolOf(p.Binaural),
	}
	inReq, outReq := e.Requirements(p)
	return e.apply(unsafe.Pointer(&np), inReq, outReq, in, out)
}

// DrainTail accepts either the speaker layout or a stereo buffer, matching
// whichever mode the preceding frames used.
func (e *AmbisonicsDecode) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	req := e.speakers
	if out.NumChannels() == 2 {
		req = Exactly(2)
	}
	return e.drain(req, out)
}

// --- Panning ---

type AmbisonicsPanningSettings struct {
	SpeakerLayout SpeakerLayout
	MaxOrder      int
}

type AmbisonicsPanningParams struct {
	Order int
}

// AmbisonicsPanning decodes a sound field to speakers by panning.
type AmbisonicsPanning struct {
	*core
	maxOrder int
	in, out  ChannelRequirement
}

func NewAmbisonicsPanning(ctx *spatial.Context, audio spatial.AudioSettings, settings AmbisonicsPanningSettings) (*AmbisonicsPanning, error) {
	const op = "create ambisonics panning effect"
	if err := validMaxOrder(op, settings.MaxOrder); err != nil {
		return nil, err
	}
	if err := settings.SpeakerLayout.validate(op); err != nil {
		return nil, err
	}
	layout, pins := settings.SpeakerLayout.toNative()
	ns := native.AmbisonicsPanningEffectSettings{SpeakerLayout: layout, MaxOrder: int32(settings.MaxOrder)}
	c, err := newCore(ctx, native.EffectAmbisonicsPanning, audio, unsafe.Pointer(&ns), pins...)
	if err != nil {
		return nil, err
	}
	return &AmbisonicsPanning{
		core:     c,
		maxOrder: settings.MaxOrder,
		in:       Exactly(ambisonicChannels(settings.MaxOrder)),
		out:      Exactly(settings.SpeakerLayout.NumChannels()),
	}, nil
}

func (e *AmbisonicsPanning) Requirements(AmbisonicsPanningParams) (in, out ChannelRequirement) {
	return e.in, e.out
}

func (e *AmbisonicsPanning) Apply(p AmbisonicsPanningParams, in, out *audiobuf.Buffer) (TailState, error) {
	if err := checkOrder(e.op(), p.Order, e.maxOrder); err != nil {
		return TailComplete, err
	}
	np := native.AmbisonicsPanningEffectParams{Order: int32(p.Order)}
	return e.apply(unsafe.Pointer(&np), e.in, e.out, in, out)
}

func (e *AmbisonicsPanning) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(e.out, out)
}

// --- Binaural ---

type AmbisonicsBinauralSettings struct {
	HRTF     *spatial.HRTF
	MaxOrder int
}

type AmbisonicsBinauralParams struct {
	// HRTF defaults to the one the effect was created with.
	HRTF  *spatial.HRTF
	Order int
}

// AmbisonicsBinaural renders a sound field to headphones.
type AmbisonicsBinaural struct {
	*core
	hrtf     *spatial.HRTF
	maxOrder int
	in       ChannelRequirement
}

func NewAmbisonicsBinaural(ctx *spatial.Context, audio spatial.AudioSettings, settings AmbisonicsBinauralSettings) (*AmbisonicsBinaural, error) {
	if err := validMaxOrder("create ambisonics binaural effect", settings.MaxOrder); err != nil {
		return nil, err
	}
	ns := native.AmbisonicsBinauralEffectSettings{HRTF: rawOrZero(settings.HRTF), MaxOrder: int32(settings.MaxOrder)}
	c, err := newCore(ctx, native.EffectAmbisonicsBinaural, audio, unsafe.Pointer(&ns))
	if err != nil {
		return nil, err
	}
	return &AmbisonicsBinaural{
		core:     c,
		hrtf:     settings.HRTF,
		maxOrder: settings.MaxOrder,
		in:       Exactly(ambisonicChannels(settings.MaxOrder)),
	}, nil
}

func (e *AmbisonicsBinaural) Requirements(AmbisonicsBinauralParams) (in, out ChannelRequirement) {
	return e.in, Exactly(2)
}

func (e *AmbisonicsBinaural) Apply(p AmbisonicsBinauralParams, in, out *audiobuf.Buffer) (TailState, error) {
	if err := checkOrder(e.op(), p.Order, e.maxOrder); err != nil {
		return TailComplete, err
	}
	hrtf := p.HRTF
	if hrtf == nil {
		hrtf = e.hrtf
	}
	np := native.AmbisonicsBinauralEffectParams{HRTF: rawOrZero(hrtf), Order: int32(p.Order)}
	return e.apply(unsafe.Pointer(&np), e.in, Exactly(2), in, out)
}

func (e *AmbisonicsBinaural) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(Exactly(2), out)
}

// --- Rotation ---

type AmbisonicsRotationSettings struct {
	MaxOrder int
}

type AmbisonicsRotationParams struct {
	Orientation Orientation
	Order       int
}

// AmbisonicsRotation rotates a sound field into the listener's frame.
type AmbisonicsRotation struct {
	*core
	maxOrder int
	ch       ChannelRequirement
}

func NewAmbisonicsRotation(ctx *spatial.Context, audio spatial.AudioSettings, settings AmbisonicsRotationSettings) (*AmbisonicsRotation, error) {
	if err := validMaxOrder("create ambisonics rotation effect", settings.MaxOrder); err != nil {
		return nil, err
	}
	ns := native.AmbisonicsRotationEffectSettings{MaxOrder: int32(settings.MaxOrder)}
	c, err := newCore(ctx, native.EffectAmbisonicsRotation, audio, unsafe.Pointer(&ns))
	if err != nil {
		return nil, err
	}
	return &AmbisonicsRotation{core: c, maxOrder: settings.MaxOrder, ch: Exactly(ambisonicChannels(settings.MaxOrder))}, nil
}

func (e *AmbisonicsRotation) Requirements(AmbisonicsRotationParams) (in, out ChannelRequirement) {
	return e.ch, e.ch
}

func (e *AmbisonicsRotation) Apply(p AmbisonicsRotationParams, in, out *audiobuf.Buffer) (TailState, error) {
	if err := checkOrder(e.op(), p.Order, e.maxOrder); err != nil {
		return TailComplete, err
	}
	np := native.AmbisonicsRotationEffectParams{Orientation: orientationOrIdentity(p.Orientation), Order: int32(p.Order)}
	return e.apply(unsafe.Pointer(&np), e.ch, e.ch, in, out)
}

func (e *AmbisonicsRotation) DrainTail(out *audiobuf.Buffer) (TailState, error) {
	return e.drain(e.ch, out)
}
