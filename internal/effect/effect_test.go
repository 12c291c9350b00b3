package effect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/native/emulator"
	"nimbus/internal/spatial"
)

const frame = 32

var audio = spatial.AudioSettings{SamplingRate: 48000, FrameSize: frame}

type fixture struct {
	emu  *emulator.Emulator
	ctx  *spatial.Context
	hrtf *spatial.HRTF
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	emu := emulator.New()
	ctx, err := spatial.NewContext(emu.Library(), spatial.ContextSettings{Quiet: true})
	require.NoError(t, err)
	hrtf, err := spatial.NewHRTF(ctx, audio, spatial.HRTFSettings{})
	require.NoError(t, err)
	t.Cleanup(func() {
		hrtf.Release()
		ctx.Release()
	})
	return fixture{emu: emu, ctx: ctx, hrtf: hrtf}
}

func constant(channels int, v float32) *audiobuf.Buffer {
	b := audiobuf.WithShape(channels, frame)
	data, err := b.Data()
	if err != nil {
		panic(err)
	}
	for i := range data {
		data[i] = v
	}
	return b
}

func peak(t *testing.T, b *audiobuf.Buffer, c int) float32 {
	t.Helper()
	p, err := b.Peak(c)
	require.NoError(t, err)
	return p
}

func TestChannelRequirement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		req     ChannelRequirement
		n       int
		allowed bool
		str     string
	}{
		{Exactly(2), 2, true, "exactly 2"},
		{Exactly(2), 1, false, "exactly 2"},
		{AtLeast(1), 8, true, "at least 1"},
		{AtLeast(1), 0, false, "at least 1"},
		{Between(1, 2), 3, false, "between 1 and 2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.req.Allows(tt.n), "%s with %d", tt.req, tt.n)
		assert.Equal(t, tt.str, tt.req.String())
	}
}

func TestChannelContractMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	direct, err := NewDirect(f.ctx, audio, DirectSettings{NumChannels: 2})
	require.NoError(t, err)
	defer direct.Release()

	_, err = direct.Apply(DirectParams{}, constant(1, 1), constant(2, 0))
	require.Error(t, err)
	assert.EqualError(t, err, "invalid number of input channels: expected exactly 2, got 1")
	assert.ErrorIs(t, err, spatial.ErrChannelContract)

	var ce *ChannelError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Actual)
	assert.Equal(t, Exactly(2), ce.Expected)

	binaural, err := NewBinaural(f.ctx, audio, BinauralSettings{HRTF: f.hrtf})
	require.NoError(t, err)
	defer binaural.Release()

	_, err = binaural.Apply(BinauralParams{}, constant(1, 1), constant(1, 0))
	assert.EqualError(t, err, "invalid number of output channels: expected exactly 2, got 1")
	_, err = binaural.Apply(BinauralParams{}, constant(3, 1), constant(2, 0))
	assert.EqualError(t, err, "invalid number of input channels: expected between 1 and 2, got 3")
	assert.Equal(t, Idle, binaural.State())
}

func TestFrameSizeMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	direct, err := NewDirect(f.ctx, audio, DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()

	_, err = direct.Apply(DirectParams{}, audiobuf.WithShape(1, frame-1), constant(1, 0))
	assert.ErrorIs(t, err, spatial.ErrShapeMismatch)
}

func TestSameBufferForInputAndOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	direct, err := NewDirect(f.ctx, audio, DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()

	buf := constant(1, 1)
	_, err = direct.Apply(DirectParams{}, buf, buf)
	assert.ErrorIs(t, err, spatial.ErrBorrowed)

	// Both borrows were returned.
	v, err := buf.Borrow()
	require.NoError(t, err)
	v.Release()
}

func TestBinauralDrainsToIdle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewBinaural(f.ctx, audio, BinauralSettings{HRTF: f.hrtf})
	require.NoError(t, err)
	defer e.Release()

	out := audiobuf.WithShape(2, frame)
	_, err = e.DrainTail(out)
	assert.ErrorIs(t, err, ErrNotDraining)

	delays := make([]float32, 2)
	state, err := e.Apply(BinauralParams{Direction: Vector3{X: 1}, SpatialBlend: 1, PeakDelays: delays}, constant(1, 1), out)
	require.NoError(t, err)
	require.Equal(t, TailRemaining, state)
	assert.Equal(t, TailDraining, e.State())
	assert.Greater(t, delays[0], float32(0))

	bound := (e.TailSize()+frame-1)/frame + 1
	drains := 0
	for state == TailRemaining {
		state, err = e.DrainTail(out)
		require.NoError(t, err)
		drains++
		require.LessOrEqual(t, drains, bound)
	}
	assert.Equal(t, Idle, e.State())
	assert.Greater(t, peak(t, out, 1), float32(0))

	_, err = e.DrainTail(out)
	assert.ErrorIs(t, err, ErrNotDraining)
}

func TestPeakDelaysLength(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewBinaural(f.ctx, audio, BinauralSettings{HRTF: f.hrtf})
	require.NoError(t, err)
	defer e.Release()

	_, err = e.Apply(BinauralParams{PeakDelays: make([]float32, 1)}, constant(1, 1), audiobuf.WithShape(2, frame))
	assert.ErrorIs(t, err, spatial.ErrShapeMismatch)
}

func TestResetReturnsToIdle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewAmbisonicsBinaural(f.ctx, audio, AmbisonicsBinauralSettings{HRTF: f.hrtf, MaxOrder: 1})
	require.NoError(t, err)
	defer e.Release()

	state, err := e.Apply(AmbisonicsBinauralParams{Order: 1}, constant(4, 0.5), audiobuf.WithShape(2, frame))
	require.NoError(t, err)
	require.Equal(t, TailRemaining, state)

	e.Reset()
	assert.Equal(t, Idle, e.State())
	_, err = e.DrainTail(audiobuf.WithShape(2, frame))
	assert.ErrorIs(t, err, ErrNotDraining)
}

func TestDirectFlags(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewDirect(f.ctx, audio, DirectSettings{NumChannels: 2})
	require.NoError(t, err)
	defer e.Release()
	assert.Zero(t, e.TailSize())

	half, occluded := float32(0.5), float32(0)
	p := DirectParams{
		DistanceAttenuation: &half,
		Occlusion:           &occluded,
		Transmission:        &Transmission{Bands: [3]float32{0.5, 0, 0}},
	}
	np := p.toNative()
	assert.Equal(t, native.DirectApplyDistanceAttenuation|native.DirectApplyOcclusion|native.DirectApplyTransmission, np.Flags)

	out := audiobuf.WithShape(2, frame)
	state, err := e.Apply(p, constant(2, 1), out)
	require.NoError(t, err)
	assert.Equal(t, TailComplete, state)
	assert.InDelta(t, 0.25, out.Channel(1)[0], 1e-6)
}

func TestPanningCustomLayout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	layout := CustomLayout(Vector3{X: -1}, Vector3{Z: -1}, Vector3{X: 1})
	e, err := NewPanning(f.ctx, audio, PanningSettings{SpeakerLayout: layout})
	require.NoError(t, err)
	defer e.Release()

	out := audiobuf.WithShape(3, frame)
	_, err = e.Apply(PanningParams{Direction: Vector3{X: 1}}, constant(1, 1), out)
	require.NoError(t, err)
	assert.InDelta(t, 1, peak(t, out, 2), 1e-6)
	assert.Zero(t, peak(t, out, 0))

	_, err = NewPanning(f.ctx, audio, PanningSettings{SpeakerLayout: CustomLayout()})
	assert.ErrorIs(t, err, spatial.ErrShapeMismatch)
}

func TestVirtualSurround(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewVirtualSurround(f.ctx, audio, VirtualSurroundSettings{SpeakerLayout: Surround51, HRTF: f.hrtf})
	require.NoError(t, err)
	defer e.Release()

	in, out := e.Requirements(VirtualSurroundParams{})
	assert.Equal(t, Exactly(6), in)
	assert.Equal(t, Exactly(2), out)

	_, err = e.Apply(VirtualSurroundParams{}, constant(6, 1), audiobuf.WithShape(2, frame))
	require.NoError(t, err)
	assert.Equal(t, TailDraining, e.State())
}

func TestAmbisonicsEncode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewAmbisonicsEncode(f.ctx, audio, AmbisonicsEncodeSettings{MaxOrder: 1})
	require.NoError(t, err)
	defer e.Release()

	out := audiobuf.WithShape(4, frame)
	_, err = e.Apply(AmbisonicsEncodeParams{Direction: Vector3{X: 1}, Order: 1}, constant(1, 1), out)
	require.NoError(t, err)
	// ACN order W, Y, Z, X.
	assert.Equal(t, []float32{1, 0, 0, 1}, []float32{peak(t, out, 0), peak(t, out, 1), peak(t, out, 2), peak(t, out, 3)})

	_, err = e.Apply(AmbisonicsEncodeParams{Order: 2}, constant(1, 1), out)
	assert.ErrorIs(t, err, spatial.ErrOutOfBounds)
}

func TestAmbisonicsDecodeOutputFollowsMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewAmbisonicsDecode(f.ctx, audio, AmbisonicsDecodeSettings{SpeakerLayout: Quadraphonic, HRTF: f.hrtf, MaxOrder: 1})
	require.NoError(t, err)
	defer e.Release()

	_, out := e.Requirements(AmbisonicsDecodeParams{})
	assert.Equal(t, Exactly(4), out)
	_, out = e.Requirements(AmbisonicsDecodeParams{Binaural: true})
	assert.Equal(t, Exactly(2), out)

	field := constant(4, 0.25)
	stereo := audiobuf.WithShape(2, frame)
	state, err := e.Apply(AmbisonicsDecodeParams{Order: 1, Binaural: true}, field, stereo)
	require.NoError(t, err)
	for state == TailRemaining {
		state, err = e.DrainTail(stereo)
		require.NoError(t, err)
	}
	assert.Equal(t, Idle, e.State())
}

func TestAmbisonicsRotationDefaultsToIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewAmbisonicsRotation(f.ctx, audio, AmbisonicsRotationSettings{MaxOrder: 1})
	require.NoError(t, err)
	defer e.Release()

	in, err := audiobuf.FromChannels([][]float32{
		make([]float32, frame), make([]float32, frame), make([]float32, frame), make([]float32, frame),
	})
	require.NoError(t, err)
	for c := range 4 {
		in.Channel(c)[0] = float32(c + 1)
	}
	out := audiobuf.WithShape(4, frame)
	_, err = e.Apply(AmbisonicsRotationParams{Order: 1}, in, out)
	require.NoError(t, err)
	assert.Equal(t, in.Channels(), out.Channels())
}

func TestAmbisonicsPanning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewAmbisonicsPanning(f.ctx, audio, AmbisonicsPanningSettings{SpeakerLayout: Stereo, MaxOrder: 0})
	require.NoError(t, err)
	defer e.Release()

	out := audiobuf.WithShape(2, frame)
	state, err := e.Apply(AmbisonicsPanningParams{}, constant(1, 1), out)
	require.NoError(t, err)
	assert.Equal(t, TailComplete, state)
	assert.InDelta(t, 0.5, peak(t, out, 0), 1e-6)

	_, err = NewAmbisonicsPanning(f.ctx, audio, AmbisonicsPanningSettings{SpeakerLayout: Stereo, MaxOrder: -1})
	assert.ErrorIs(t, err, spatial.ErrOutOfBounds)
}

func TestBoundProcessor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e, err := NewBinaural(f.ctx, audio, BinauralSettings{HRTF: f.hrtf})
	require.NoError(t, err)

	var p Processor = Bind(e, BinauralParams{SpatialBlend: 1})
	assert.Equal(t, 2, p.OutputChannels())
	assert.Equal(t, Between(1, 2), p.InputChannels())
	assert.Equal(t, frame, p.FrameSize())

	_, err = p.Process(constant(2, 1), audiobuf.WithShape(2, frame))
	require.NoError(t, err)

	p.Release()
	assert.Zero(t, f.emu.Live(emulator.EffectKind(native.EffectBinaural)))
}

func TestEffectCreateFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.emu.FailNext(emulator.EffectKind(native.EffectDirect), native.StatusOutOfMemory)
	_, err := NewDirect(f.ctx, audio, DirectSettings{NumChannels: 1})
	assert.ErrorIs(t, err, spatial.ErrOutOfMemory)

	_, err = NewBinaural(f.ctx, audio, BinauralSettings{})
	assert.ErrorIs(t, err, spatial.ErrUnspecified)
}

func TestSpeakerLayouts(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]int{"mono": 1, "stereo": 2, "quad": 4, "5.1": 6, "7.1": 8} {
		l, err := ParseLayout(name)
		require.NoError(t, err)
		assert.Equal(t, want, l.NumChannels(), name)
		assert.Equal(t, name, l.String())
	}
	_, err := ParseLayout("atmos")
	assert.Error(t, err)
	assert.Equal(t, 2, CustomLayout(Vector3{X: 1}, Vector3{X: -1}).NumChannels())
}
