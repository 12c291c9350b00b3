package audiobuf

import (
	"runtime"

	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// FrameSettings select window FrameIndex of FrameSize samples.
type FrameSettings struct {
	FrameSize  int
	FrameIndex int
}

// View is an exclusive borrow of a buffer in the native descriptor layout.
// While it is live the storage and pointer table are pinned and the buffer
// refuses Resize and further borrows.
type View struct {
	buf      *Buffer
	offset   int
	desc     native.AudioBuffer
	table    []*float32
	pin      runtime.Pinner
	released bool
}

// Borrow returns a view of the whole buffer.
func (b *Buffer) Borrow() (*View, error) {
	if !b.borrowed.CompareAndSwap(false, true) {
		return nil, &spatial.Error{Kind: spatial.KindBorrowed, Op: "borrow"}
	}
	return b.view(b.table, b.samples, 0), nil
}

// BorrowFrame returns a view of one frame window without copying.
func (b *Buffer) BorrowFrame(s FrameSettings) (*View, error) {
	if s.FrameSize <= 0 {
		return nil, spatial.Errorf(spatial.KindShapeMismatch, "borrow frame", "frame size must be positive, got %d", s.FrameSize)
	}
	if n := b.Frames(s.FrameSize); s.FrameIndex < 0 || s.FrameIndex >= n {
		return nil, spatial.Errorf(spatial.KindOutOfBounds, "borrow frame",
			"frame %d out of range [0, %d)", s.FrameIndex, n)
	}
	if !b.borrowed.CompareAndSwap(false, true) {
		return nil, &spatial.Error{Kind: spatial.KindBorrowed, Op: "borrow frame"}
	}
	offset := s.FrameIndex * s.FrameSize
	table := buildTable(b.data, b.channels, b.samples, offset)
	return b.view(table, s.FrameSize, offset), nil
}

func (b *Buffer) view(table []*float32, samples, offset int) *View {
	v := &View{buf: b, offset: offset, table: table}
	v.desc = native.AudioBuffer{
		NumChannels: int32(b.channels),
		NumSamples:  int32(samples),
	}
	if len(table) > 0 {
		v.desc.Data = &table[0]
		v.pin.Pin(&table[0])
		if len(b.data) > 0 {
			v.pin.Pin(&b.data[0])
		}
	}
	return v
}

// With borrows b, calls fn with the descriptor and releases the view.
func (b *Buffer) With(fn func(*native.AudioBuffer) error) error {
	v, err := b.Borrow()
	if err != nil {
		return err
	}
	defer v.Release()
	return fn(v.Native())
}

// Native returns the descriptor for one synchronous native call. It panics
// after Release.
func (v *View) Native() *native.AudioBuffer {
	if v.released {
		panic("audiobuf: use of released view")
	}
	return &v.desc
}

func (v *View) NumChannels() int { return int(v.desc.NumChannels) }
func (v *View) NumSamples() int  { return int(v.desc.NumSamples) }

// Channel returns channel i of the window.
func (v *View) Channel(i int) []float32 {
	start := i*v.buf.samples + v.offset
	return v.buf.data[start : start+v.NumSamples()]
}

// Release unpins the storage and ends the borrow. Further calls do nothing.
func (v *View) Release() {
	if v.released {
		return
	}
	v.released = true
	v.pin.Unpin()
	v.buf.borrowed.Store(false)
}
