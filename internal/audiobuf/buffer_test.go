package audiobuf

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

func TestWithShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		channels, samples int
	}{
		{"stereo", 2, 1024},
		{"mono", 1, 1},
		{"no channels", 0, 64},
		{"no samples", 4, 0},
		{"empty", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := WithShape(tt.channels, tt.samples)
			assert.Equal(t, tt.channels, b.NumChannels())
			assert.Equal(t, tt.samples, b.NumSamples())
			data, err := b.Data()
			require.NoError(t, err)
			assert.Len(t, data, tt.channels*tt.samples)
			for _, v := range data {
				assert.Zero(t, v)
			}
		})
	}

	assert.Panics(t, func() { WithShape(-1, 4) })
	assert.Panics(t, func() { WithShape(1, -4) })
}

func TestPointerTableOffsets(t *testing.T) {
	t.Parallel()

	const samples = 37
	b := WithShape(3, samples)
	data, err := b.Data()
	require.NoError(t, err)
	base := uintptr(unsafe.Pointer(&data[0]))

	v, err := b.Borrow()
	require.NoError(t, err)
	defer v.Release()

	desc := v.Native()
	table := unsafe.Slice(desc.Data, desc.NumChannels)
	for i, p := range table {
		assert.Equal(t, base+uintptr(i*samples*4), uintptr(unsafe.Pointer(p)), "channel %d", i)
	}
}

func TestFromChannels(t *testing.T) {
	t.Parallel()

	runs := [][]float32{{1, 2, 3}, {4, 5, 6}}
	b, err := FromChannels(runs)
	require.NoError(t, err)
	data, err := b.Data()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, data)
	assert.Equal(t, runs, b.Channels())

	runs[0][0] = 9
	assert.Equal(t, float32(1), b.Channel(0)[0], "buffer must own its storage")

	_, err = FromChannels([][]float32{{1, 2}, {3}})
	assert.ErrorIs(t, err, spatial.ErrShapeMismatch)

	empty, err := FromChannels(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.NumChannels())
}

func TestInterleave(t *testing.T) {
	t.Parallel()

	b, err := FromChannels([][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}})
	require.NoError(t, err)

	out := make([]float32, 8)
	require.NoError(t, b.Interleave(out))
	assert.Equal(t, []float32{1, 5, 2, 6, 3, 7, 4, 8}, out)

	assert.ErrorIs(t, b.Interleave(make([]float32, 7)), spatial.ErrShapeMismatch)
}

func TestInterleaveRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{
		0, float32(math.Copysign(0, -1)), 1, -1,
		math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(1)),
		float32(math.Inf(-1)), 0.5, -0.25, 1e-20,
	}
	b, err := FromInterleaved(in, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, b.NumSamples())

	out := make([]float32, len(in))
	require.NoError(t, b.Interleave(out))
	for i := range in {
		assert.Equal(t, math.Float32bits(in[i]), math.Float32bits(out[i]), "sample %d", i)
	}

	_, err = FromInterleaved(in, 5)
	assert.ErrorIs(t, err, spatial.ErrShapeMismatch)
}

func TestBorrowIsExclusive(t *testing.T) {
	t.Parallel()

	b := WithShape(2, 16)
	v, err := b.Borrow()
	require.NoError(t, err)

	_, err = b.Borrow()
	assert.ErrorIs(t, err, spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Resize(32), spatial.ErrBorrowed)

	v.Release()
	v.Release()
	assert.Panics(t, func() { v.Native() })

	require.NoError(t, b.Resize(32))
	assert.Equal(t, 32, b.NumSamples())
}

func TestResizeKeepsPrefix(t *testing.T) {
	t.Parallel()

	b, err := FromChannels([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	require.NoError(t, b.Resize(5))
	assert.Equal(t, [][]float32{{1, 2, 3, 0, 0}, {4, 5, 6, 0, 0}}, b.Channels())

	require.NoError(t, b.Resize(2))
	assert.Equal(t, [][]float32{{1, 2}, {4, 5}}, b.Channels())

	err = b.With(func(desc *native.AudioBuffer) error {
		assert.Equal(t, int32(2), desc.NumSamples)
		second := unsafe.Slice(desc.Data, 2)[1]
		assert.Equal(t, float32(4), *second)
		return nil
	})
	require.NoError(t, err)
}

func TestFrameWindows(t *testing.T) {
	t.Parallel()

	b, err := FromChannels([][]float32{{0, 1, 2, 3, 4, 5, 6}, {10, 11, 12, 13, 14, 15, 16}})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Frames(2))
	assert.Zero(t, b.Frames(0))

	v, err := b.BorrowFrame(FrameSettings{FrameSize: 2, FrameIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, v.NumSamples())
	assert.Equal(t, []float32{2, 3}, v.Channel(0))
	assert.Equal(t, []float32{12, 13}, v.Channel(1))

	table := unsafe.Slice(v.Native().Data, 2)
	assert.Equal(t, float32(12), *table[1])
	v.Release()

	_, err = b.BorrowFrame(FrameSettings{FrameSize: 2, FrameIndex: 3})
	assert.ErrorIs(t, err, spatial.ErrOutOfBounds)
}

func TestMixAndDownmix(t *testing.T) {
	t.Parallel()

	dst, err := FromChannels([][]float32{{1, 1}, {2, 2}})
	require.NoError(t, err)
	src, err := FromChannels([][]float32{{0.5, -1}, {1, 0}})
	require.NoError(t, err)

	require.NoError(t, dst.Mix(src))
	assert.Equal(t, [][]float32{{1.5, 0}, {3, 2}}, dst.Channels())
	assert.ErrorIs(t, dst.Mix(WithShape(2, 3)), spatial.ErrShapeMismatch)

	mono := WithShape(1, 2)
	require.NoError(t, dst.Downmix(mono))
	assert.InDeltaSlice(t, []float32{2.25, 1}, mono.Channel(0), 1e-6)
	assert.ErrorIs(t, dst.Downmix(WithShape(2, 2)), spatial.ErrShapeMismatch)

	require.NoError(t, dst.Scale(-2))
	peak, err := dst.Peak(1)
	require.NoError(t, err)
	assert.Equal(t, float32(6), peak)
	peak, err = WithShape(1, 0).Peak(0)
	require.NoError(t, err)
	assert.Equal(t, float32(0), peak)

	require.NoError(t, dst.Zero())
	peak, err = dst.Peak(0)
	require.NoError(t, err)
	assert.Zero(t, peak)
}

func TestBorrowedBufferRefusesAccess(t *testing.T) {
	t.Parallel()

	b, err := FromChannels([][]float32{{1, -3}, {2, 2}})
	require.NoError(t, err)
	other := WithShape(2, 2)

	v, err := b.BorrowFrame(FrameSettings{FrameSize: 2})
	require.NoError(t, err)

	assert.ErrorIs(t, b.Mix(other), spatial.ErrBorrowed)
	assert.ErrorIs(t, other.Mix(b), spatial.ErrBorrowed, "a borrowed source must not be read either")
	assert.ErrorIs(t, b.Interleave(make([]float32, 4)), spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Deinterleave(make([]float32, 4)), spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Scale(2), spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Zero(), spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Downmix(WithShape(1, 2)), spatial.ErrBorrowed)
	_, err = b.Peak(0)
	assert.ErrorIs(t, err, spatial.ErrBorrowed)
	_, err = b.Data()
	assert.ErrorIs(t, err, spatial.ErrBorrowed)
	assert.ErrorIs(t, b.Resize(4), spatial.ErrBorrowed)

	var serr *spatial.Error
	require.ErrorAs(t, b.Mix(other), &serr)
	assert.Equal(t, "mix", serr.Op)

	v.Release()
	require.NoError(t, b.Mix(other))
	out := make([]float32, 4)
	require.NoError(t, b.Interleave(out))
	assert.Equal(t, []float32{1, 2, -3, 2}, out)
	peak, err := b.Peak(0)
	require.NoError(t, err)
	assert.Equal(t, float32(3), peak)
}
