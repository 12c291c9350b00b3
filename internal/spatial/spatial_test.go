package spatial

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus/internal/log"
	"nimbus/internal/native"
	"nimbus/internal/native/emulator"
)

func newRuntime(t *testing.T, opts ...emulator.Option) (*emulator.Emulator, *Context) {
	t.Helper()
	emu := emulator.New(opts...)
	ctx, err := NewContext(emu.Library(), ContextSettings{Quiet: true})
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return emu, ctx
}

func TestMapStatusRoundTrip(t *testing.T) {
	t.Parallel()

	kind, failed := MapStatus(native.StatusSuccess)
	assert.False(t, failed)
	assert.Zero(t, kind)

	for _, s := range []native.Status{native.StatusFailure, native.StatusOutOfMemory, native.StatusInitialization} {
		kind, failed := MapStatus(s)
		require.True(t, failed)
		assert.Equal(t, s, StatusOf(kind))
	}

	assert.Panics(t, func() { MapStatus(native.Status(42)) })
	assert.Panics(t, func() { StatusOf(KindBorrowed) })
}

func TestCheckMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status native.Status
		target error
		msg    string
	}{
		{native.StatusFailure, ErrUnspecified, "create hrtf: unspecified error"},
		{native.StatusOutOfMemory, ErrOutOfMemory, "create hrtf: out of memory"},
		{native.StatusInitialization, ErrInitialization, "create hrtf: error while initializing an external dependency"},
	}
	for _, tt := range tests {
		err := Check("create hrtf", tt.status)
		require.Error(t, err)
		assert.ErrorIs(t, err, tt.target)
		assert.EqualError(t, err, tt.msg)
	}
	assert.NoError(t, Check("create hrtf", native.StatusSuccess))
	assert.False(t, errors.Is(Check("x", native.StatusFailure), ErrOutOfMemory))
}

func TestContextVersionMismatch(t *testing.T) {
	t.Parallel()

	emu := emulator.New(emulator.WithVersion(5, 0, 0))
	_, err := NewContext(emu.Library(), ContextSettings{Quiet: true})
	assert.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "rejected API version 4.6.1")
	assert.Zero(t, emu.Live(emulator.KindContext))

	// The requested version is what the runtime checks.
	ctx, err := NewContext(emu.Library(), ContextSettings{Quiet: true, Version: Version{Major: 5}})
	require.NoError(t, err)
	ctx.Release()

	_, err = NewContext(emulator.New().Library(), ContextSettings{Quiet: true, Version: Version{Major: 3, Minor: 9}})
	assert.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "3.9.0")
}

func TestVersionPacking(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(4<<16|6<<8|1), APIVersion.Packed())
	assert.Equal(t, uint32(5<<16|0x12<<8|3), Version{5, 0x12, 3}.Packed())
	assert.Equal(t, "4.6.1", APIVersion.String())
}

func TestCloneAndReleaseBalance(t *testing.T) {
	t.Parallel()

	emu, ctx := newRuntime(t)
	dev, err := NewEmbreeDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeOwning, dev.Handle().Mode())

	const clones = 5
	all := []*EmbreeDevice{dev}
	for range clones {
		c := dev.Clone()
		assert.Equal(t, ModeRetained, c.Handle().Mode())
		assert.Equal(t, dev.Raw(), c.Raw())
		all = append(all, c)
	}
	assert.Equal(t, clones+1, emu.RefCount(dev.Raw()))

	raw := dev.Raw()
	for _, d := range all {
		d.Release()
		// The emulator panics on a release of a dead handle, so a second
		// native release would fail the test here.
		d.Release()
	}
	assert.Zero(t, emu.RefCount(raw))
	assert.Zero(t, emu.Live(emulator.KindEmbreeDevice))
}

func TestRawAfterReleasePanics(t *testing.T) {
	t.Parallel()

	_, ctx := newRuntime(t)
	dev, err := NewEmbreeDevice(ctx)
	require.NoError(t, err)
	dev.Release()

	assert.True(t, dev.Handle().Released())
	assert.Panics(t, func() { dev.Raw() })
}

func TestNullHandle(t *testing.T) {
	t.Parallel()

	dev := &OpenCLDevice{resource{NullHandle(KindOpenCLDeviceObject)}}
	assert.True(t, dev.IsNull())
	assert.Equal(t, native.Handle(0), dev.Raw())
	assert.NotPanics(t, dev.Release)
	assert.True(t, dev.Clone().IsNull())
}

func TestOpenCLDevices(t *testing.T) {
	t.Parallel()

	emu, ctx := newRuntime(t, emulator.WithOpenCLDevices(
		emulator.DeviceInfo{Name: "cpu0", Type: native.OpenCLDeviceCPU},
		emulator.DeviceInfo{Name: "gpu0", Vendor: "acme", Type: native.OpenCLDeviceGPU, PerfScore: 2},
	))

	list, err := NewOpenCLDeviceList(ctx, OpenCLDeviceSettings{Type: native.OpenCLDeviceGPU})
	require.NoError(t, err)
	defer list.Release()

	require.Equal(t, 1, list.Len())
	descs := list.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "gpu0", descs[0].DeviceName)

	_, err = list.Descriptor(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = NewOpenCLDevice(ctx, list, 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	dev, err := NewOpenCLDevice(ctx, list, 0)
	require.NoError(t, err)
	defer dev.Release()

	rr, err := NewRadeonRaysDevice(ctx, dev)
	require.NoError(t, err)
	defer rr.Release()

	_, err = NewTrueAudioNextDevice(ctx, dev, TrueAudioNextSettings{})
	assert.ErrorIs(t, err, ErrUnspecified)
	tan, err := NewTrueAudioNextDevice(ctx, dev, TrueAudioNextSettings{FrameSize: 1024, IRSize: 48000, Order: 1, MaxSources: 4})
	require.NoError(t, err)
	tan.Release()

	assert.Equal(t, 1, emu.Live(emulator.KindOpenCLDevice))
}

func TestHRTF(t *testing.T) {
	t.Parallel()

	_, ctx := newRuntime(t)
	audio := DefaultAudioSettings()

	hrtf, err := NewHRTF(ctx, audio, HRTFSettings{})
	require.NoError(t, err)
	hrtf.Release()

	_, err = NewHRTF(ctx, audio, HRTFSettings{SOFAFile: "/nonexistent/ears.sofa"})
	assert.ErrorIs(t, err, ErrUnspecified)

	_, err = NewHRTF(ctx, AudioSettings{SamplingRate: 48000}, HRTFSettings{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSerializedObjectOutlivesOriginal(t *testing.T) {
	t.Parallel()

	_, ctx := newRuntime(t)
	data := []byte("baked reflections")
	obj, err := SerializedObjectFromBytes(ctx, data)
	require.NoError(t, err)

	// The object holds its own copy.
	data[0] = 'X'
	clone := obj.Clone()
	obj.Release()

	assert.Equal(t, len("baked reflections"), clone.Len())
	assert.Equal(t, []byte("baked reflections"), clone.Bytes())
	clone.Release()
	assert.Zero(t, clone.pinned.holders.Load())

	empty, err := NewSerializedObject(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.Bytes())
	empty.Release()
}

func TestBakeReflectionsReportsProgress(t *testing.T) {
	t.Parallel()

	_, ctx := newRuntime(t)
	var got []float32
	err := BakeReflections(context.Background(), ctx, ReflectionsBakeParams{NumBounces: 2}, func(p float32) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1}, got)
}

func TestBakeGuard(t *testing.T) {
	_, ctx := newRuntime(t)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = WithBakeLock("hold", func() error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := BakeReflections(context.Background(), ctx, ReflectionsBakeParams{}, nil)
	assert.ErrorIs(t, err, ErrBakeInProgress)
	assert.EqualError(t, err, "bake reflections: another bake operation is already in progress")
	close(done)

	require.Eventually(t, func() bool {
		return BakeReflections(context.Background(), ctx, ReflectionsBakeParams{}, nil) == nil
	}, time.Second, time.Millisecond)
	assert.Zero(t, callbacks.len())
}

func TestBakeHonorsCanceledContext(t *testing.T) {
	_, rt := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := BakeReflections(ctx, rt, ReflectionsBakeParams{}, func(float32) { t.Error("progress after cancel") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeLogsAreForwarded(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(&bytes.Buffer{})

	emu := emulator.New(emulator.WithVersion(4, 7, 0))
	ctx, err := NewContext(emu.Library(), ContextSettings{})
	require.NoError(t, err)
	ctx.Release()

	assert.Contains(t, buf.String(), "[INFO] phonon: emulated runtime 4.7.0 ready")
}

func TestCreateFailureMetrics(t *testing.T) {
	emu, ctx := newRuntime(t)

	failures := metrics.failures.WithLabelValues(KindEmbreeDeviceObject, KindOutOfMemory.String())
	live := metrics.live.WithLabelValues(KindEmbreeDeviceObject)
	before, liveBefore := testutil.ToFloat64(failures), testutil.ToFloat64(live)

	emu.FailNext(emulator.KindEmbreeDevice, native.StatusOutOfMemory)
	_, err := NewEmbreeDevice(ctx)
	require.ErrorIs(t, err, ErrOutOfMemory)

	assert.Equal(t, before+1, testutil.ToFloat64(failures))
	assert.Equal(t, liveBefore, testutil.ToFloat64(live))

	dev, err := NewEmbreeDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, liveBefore+1, testutil.ToFloat64(live))
	dev.Release()
	assert.Equal(t, liveBefore, testutil.ToFloat64(live))
}

func TestLeakedHandleIsCollected(t *testing.T) {
	emu, ctx := newRuntime(t)
	collected := metrics.collected.WithLabelValues(KindEmbreeDeviceObject)
	before := testutil.ToFloat64(collected)

	func() {
		_, err := NewEmbreeDevice(ctx)
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return testutil.ToFloat64(collected) == before+1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, emu.Live(emulator.KindEmbreeDevice))
}

func TestRegisterMetricsTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
}

func TestCancelBakeDuringBake(t *testing.T) {
	_, rt := newRuntime(t)

	started := make(chan struct{})
	resume := make(chan struct{})
	calls := 0
	errc := make(chan error, 1)
	go func() {
		errc <- BakeReflections(context.Background(), rt, ReflectionsBakeParams{NumBounces: 8}, func(float32) {
			calls++
			if calls == 1 {
				close(started)
				<-resume
			}
		})
	}()
	<-started

	// Cancel returns while the bake still holds the lock.
	CancelBakeReflections(rt)
	assert.ErrorIs(t, BakePaths(context.Background(), rt, PathBakeParams{}, nil), ErrBakeInProgress)
	close(resume)

	err := <-errc
	assert.ErrorIs(t, err, ErrBakeCanceled)
	assert.EqualError(t, err, "bake reflections: bake canceled")
	assert.Equal(t, 1, calls)
	assert.Zero(t, callbacks.len())

	// The next bake starts clean.
	require.NoError(t, BakeReflections(context.Background(), rt, ReflectionsBakeParams{NumBounces: 2}, nil))
}

func TestBakePaths(t *testing.T) {
	_, rt := newRuntime(t)

	var got []float32
	err := BakePaths(context.Background(), rt, PathBakeParams{NumSamples: 4, PathRange: 50}, func(p float32) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, got)

	got = nil
	err = BakePaths(context.Background(), rt, PathBakeParams{NumSamples: 4}, func(p float32) {
		got = append(got, p)
		if len(got) == 2 {
			CancelBakePaths(rt)
		}
	})
	assert.ErrorIs(t, err, ErrBakeCanceled)
	assert.Equal(t, []float32{0.25, 0.5}, got)
}

func TestCancelWithoutBakeIsHarmless(t *testing.T) {
	_, rt := newRuntime(t)

	CancelBakeReflections(rt)
	CancelBakePaths(rt)
	assert.NoError(t, BakeReflections(context.Background(), rt, ReflectionsBakeParams{NumBounces: 1}, nil))
	assert.NoError(t, BakePaths(context.Background(), rt, PathBakeParams{NumSamples: 1}, nil))
}
