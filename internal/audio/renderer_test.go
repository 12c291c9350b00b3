package audio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus/internal/audiobuf"
	"nimbus/internal/effect"
	"nimbus/internal/monitor"
	"nimbus/internal/native/emulator"
	"nimbus/internal/spatial"
	"nimbus/pkg/utils"
)

var testAudio = spatial.AudioSettings{SamplingRate: testSampleRate, FrameSize: testFrameSize}

type collector struct {
	samples  []float32
	channels int
	frames   int
	failAt   int
}

func (c *collector) WriteFrame(samples []float32, channels int) error {
	c.frames++
	if c.failAt > 0 && c.frames == c.failAt {
		return errors.New("disk full")
	}
	c.channels = channels
	c.samples = append(c.samples, samples...)
	return nil
}

func (c *collector) Close() error { return nil }

func newContext(t *testing.T) *spatial.Context {
	t.Helper()
	ctx, err := spatial.NewContext(emulator.New().Library(), spatial.ContextSettings{Quiet: true})
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return ctx
}

func mono(samples []float32) *audiobuf.Buffer {
	b, err := audiobuf.FromChannels([][]float32{samples})
	if err != nil {
		panic(err)
	}
	return b
}

func TestRenderDirectPadsLastFrame(t *testing.T) {
	ctx := newContext(t)
	direct, err := effect.NewDirect(ctx, testAudio, effect.DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()

	half := float32(0.5)
	r := NewRenderer(effect.Bind(direct, effect.DirectParams{DistanceAttenuation: &half}))

	src := make([]float32, 3*testFrameSize+5)
	for i := range src {
		src[i] = 1
	}
	sink := &collector{}
	rep, err := r.Render(context.Background(), mono(src), sink)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rep.Session)
	assert.Equal(t, 4, rep.Frames)
	assert.Zero(t, rep.TailFrames)
	assert.Equal(t, 4*testFrameSize, rep.Samples(testFrameSize))
	assert.Equal(t, testFrameSize-5, rep.Padding)
	require.Len(t, sink.samples, 4*testFrameSize)
	assert.Equal(t, 1, sink.channels)
	for i, v := range sink.samples {
		want := float32(0.5)
		if i >= len(src) {
			want = 0
		}
		require.InDelta(t, want, v, 1e-6, "sample %d", i)
	}
}

func TestRenderBinauralDrainsTailIntoWAV(t *testing.T) {
	ctx := newContext(t)
	hrtf, err := spatial.NewHRTF(ctx, testAudio, spatial.HRTFSettings{})
	require.NoError(t, err)
	defer hrtf.Release()
	bin, err := effect.NewBinaural(ctx, testAudio, effect.BinauralSettings{HRTF: hrtf})
	require.NoError(t, err)
	defer bin.Release()

	r := NewRenderer(effect.Bind(bin, effect.BinauralParams{Direction: effect.Vector3{X: 1}, SpatialBlend: 1}))
	require.Equal(t, 2, r.OutputChannels())

	rec, err := NewRecorder(testSampleRate, 2, 16)
	require.NoError(t, err)
	filename := filepath.Join(t.TempDir(), "render.wav")
	require.NoError(t, rec.StartRecording(filename))

	src := utils.SineWave(100, testSampleRate, 440, 0.5)
	rep, err := r.Render(context.Background(), mono(src), rec)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	assert.Equal(t, 4, rep.Frames)
	assert.Positive(t, rep.TailFrames)
	assert.LessOrEqual(t, rep.TailFrames, (bin.TailSize()+testFrameSize-1)/testFrameSize+1)
	assert.Equal(t, effect.Idle, bin.State())

	d, data := decodeWAV(t, filename)
	assert.EqualValues(t, 2, d.NumChans)
	assert.Len(t, data, 2*rep.Samples(testFrameSize))
	assert.Equal(t, rep.Samples(testFrameSize), rec.Written())
}

func TestRenderRejectsSourceChannels(t *testing.T) {
	ctx := newContext(t)
	pan, err := effect.NewPanning(ctx, testAudio, effect.PanningSettings{SpeakerLayout: effect.Stereo})
	require.NoError(t, err)
	defer pan.Release()

	r := NewRenderer(effect.Bind(pan, effect.PanningParams{}))
	_, err = r.Render(context.Background(), audiobuf.WithShape(2, testFrameSize))
	assert.ErrorIs(t, err, spatial.ErrChannelContract)
	assert.EqualError(t, err, "invalid number of input channels: expected exactly 1, got 2")
}

func TestRenderStopsOnCancel(t *testing.T) {
	ctx := newContext(t)
	direct, err := effect.NewDirect(ctx, testAudio, effect.DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()
	r := NewRenderer(effect.Bind(direct, effect.DirectParams{}))

	cctx, cancel := context.WithCancel(context.Background())
	sink := &cancelAfter{n: 2, cancel: cancel}
	rep, err := r.Render(cctx, mono(make([]float32, 10*testFrameSize)), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, rep.Frames)
	assert.Positive(t, rep.Elapsed)
}

type cancelAfter struct {
	collector
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) WriteFrame(samples []float32, channels int) error {
	if err := c.collector.WriteFrame(samples, channels); err != nil {
		return err
	}
	if c.frames == c.n {
		c.cancel()
	}
	return nil
}

func TestRenderSinkError(t *testing.T) {
	ctx := newContext(t)
	direct, err := effect.NewDirect(ctx, testAudio, effect.DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()
	r := NewRenderer(effect.Bind(direct, effect.DirectParams{}))

	_, err = r.Render(context.Background(), mono(make([]float32, 4*testFrameSize)), &collector{failAt: 3})
	assert.ErrorContains(t, err, "disk full")
}

func TestRenderReportsGatedFrames(t *testing.T) {
	ctx := newContext(t)
	direct, err := effect.NewDirect(ctx, testAudio, effect.DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()
	r := NewRenderer(effect.Bind(direct, effect.DirectParams{}))

	src := make([]float32, 3*testFrameSize)
	src[testFrameSize] = 0.9 // only the middle frame is loud
	mt := &utils.MockTransport{}
	meter := monitor.NewMeter(mt, monitor.NewGate(0.01))

	rep, err := r.Render(context.Background(), mono(src), meter)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Gated)
	assert.Len(t, mt.Messages(), 1)
}

func TestRenderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))

	ctx := newContext(t)
	direct, err := effect.NewDirect(ctx, testAudio, effect.DirectSettings{NumChannels: 1})
	require.NoError(t, err)
	defer direct.Release()
	r := NewRenderer(effect.Bind(direct, effect.DirectParams{}))

	before := testutil.ToFloat64(renderFrames.WithLabelValues("source"))
	_, err = r.Render(context.Background(), mono(make([]float32, 2*testFrameSize)))
	require.NoError(t, err)
	assert.Equal(t, before+2, testutil.ToFloat64(renderFrames.WithLabelValues("source")))
}
