package spatial

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"nimbus/internal/native"
)

// pinnedBytes keeps a byte slice pinned while any handle aliasing it lives.
type pinnedBytes struct {
	data    []byte
	pin     runtime.Pinner
	holders atomic.Int32
}

func (p *pinnedBytes) acquire() func() {
	p.holders.Add(1)
	return p.release
}

func (p *pinnedBytes) release() {
	if p.holders.Add(-1) == 0 {
		p.pin.Unpin()
	}
}

// SerializedObject is a byte container the runtime reads baked data from
// and writes it to.
type SerializedObject struct {
	resource
	lib    *native.Library
	pinned *pinnedBytes
}

// NewSerializedObject creates an empty object for the runtime to fill.
func NewSerializedObject(ctx *Context) (*SerializedObject, error) {
	lib := ctx.lib
	var ns native.SerializedObjectSettings
	h, err := Create(KindSerializedObject, lib.SerializedObject, func(out *native.Handle) native.Status {
		return lib.SerializedObjectCreate(ctx.Raw(), &ns, out)
	})
	if err != nil {
		return nil, err
	}
	return &SerializedObject{resource: resource{h}, lib: lib}, nil
}

// SerializedObjectFromBytes wraps a copy of data. The runtime reads the
// copy in place, so it stays pinned until the last clone is released.
func SerializedObjectFromBytes(ctx *Context, data []byte) (*SerializedObject, error) {
	if len(data) == 0 {
		return NewSerializedObject(ctx)
	}
	lib := ctx.lib
	p := &pinnedBytes{data: append([]byte(nil), data...)}
	p.pin.Pin(&p.data[0])
	ns := native.SerializedObjectSettings{Data: &p.data[0], Size: uintptr(len(p.data))}

	h, err := createWith(KindSerializedObject, lib.SerializedObject, func(out *native.Handle) native.Status {
		return lib.SerializedObjectCreate(ctx.Raw(), &ns, out)
	}, p.acquire())
	if err != nil {
		p.release()
		return nil, err
	}
	return &SerializedObject{resource: resource{h}, lib: lib, pinned: p}, nil
}

// Clone returns a second reference sharing the same data.
func (o *SerializedObject) Clone() *SerializedObject {
	var after func()
	if o.pinned != nil {
		after = o.pinned.acquire()
	}
	return &SerializedObject{resource: resource{o.h.retainWith(after)}, lib: o.lib, pinned: o.pinned}
}

// Len returns the size of the object's data in bytes.
func (o *SerializedObject) Len() int {
	return int(o.lib.SerializedObjectGetSize(o.Raw()))
}

// Bytes returns a copy of the object's data.
func (o *SerializedObject) Bytes() []byte {
	n := o.Len()
	if n == 0 {
		return nil
	}
	p := o.lib.SerializedObjectGetData(o.Raw())
	if p == nil {
		return nil
	}
	return append([]byte(nil), unsafe.Slice(p, n)...)
}
