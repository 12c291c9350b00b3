// SPDX-License-Identifier: MIT

package spatial

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"nimbus/internal/log"
	"nimbus/internal/native"
)

// Mode records how a Handle came to hold its native reference.
type Mode uint8

const (
	// ModeNull holds nothing. Release is a no-op and Raw returns 0.
	ModeNull Mode = iota
	// ModeOwning holds the reference returned by a native factory.
	ModeOwning
	// ModeRetained holds a reference taken with a native retain.
	ModeRetained
)

func (m Mode) String() string {
	switch m {
	case ModeNull:
		return "null"
	case ModeOwning:
		return "owning"
	case ModeRetained:
		return "retained"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Handle owns one native reference and releases it exactly once, either by
// an explicit Release or, as a fallback, when the Handle becomes
// unreachable. Leaked handles are logged and counted.
type Handle struct {
	id       native.Handle
	mode     Mode
	kind     string
	fns      native.RefFuncs
	after    func()
	released atomic.Bool
	cleanup  runtime.Cleanup
}

var handleLog = log.Named("spatial")

// Create calls a native factory and wraps the handle it produces. A failed
// status is returned as an *Error and nothing is tracked.
func Create(kind string, fns native.RefFuncs, factory func(out *native.Handle) native.Status) (*Handle, error) {
	return createWith(kind, fns, factory, nil)
}

// createWith is Create with a hook run after the native release.
func createWith(kind string, fns native.RefFuncs, factory func(out *native.Handle) native.Status, after func()) (*Handle, error) {
	var id native.Handle
	if err := Check("create "+kind, factory(&id)); err != nil {
		metrics.failed(kind, err)
		return nil, err
	}
	if id == 0 {
		err := Errorf(KindUnspecified, "create "+kind, "native factory returned a null handle")
		metrics.failed(kind, err)
		return nil, err
	}
	return track(kind, fns, id, ModeOwning, after), nil
}

// NullHandle returns a handle that refers to nothing.
func NullHandle(kind string) *Handle {
	return &Handle{kind: kind, mode: ModeNull}
}

type leak struct {
	kind    string
	id      native.Handle
	release func(*native.Handle)
	after   func()
}

func track(kind string, fns native.RefFuncs, id native.Handle, mode Mode, after func()) *Handle {
	h := &Handle{id: id, mode: mode, kind: kind, fns: fns, after: after}
	h.cleanup = runtime.AddCleanup(h, collect, leak{kind: kind, id: id, release: fns.Release, after: after})
	metrics.created(kind)
	return h
}

func collect(l leak) {
	handleLog.Warnf("%s handle %#x was never released; releasing it from the collector", l.kind, uintptr(l.id))
	id := l.id
	l.release(&id)
	if l.after != nil {
		l.after()
	}
	metrics.leaked(l.kind)
}

// Kind returns the object kind the handle was created for.
func (h *Handle) Kind() string {
	if h == nil {
		return ""
	}
	return h.kind
}

// Mode returns how the handle holds its reference.
func (h *Handle) Mode() Mode {
	if h == nil {
		return ModeNull
	}
	return h.mode
}

// IsNull reports whether the handle refers to nothing.
func (h *Handle) IsNull() bool {
	return h == nil || h.mode == ModeNull
}

// Raw returns the native handle for passing to an entry point. It panics
// once the handle has been released.
func (h *Handle) Raw() native.Handle {
	if h.IsNull() {
		return 0
	}
	if h.released.Load() {
		panic(fmt.Sprintf("spatial: use of released %s handle", h.kind))
	}
	return h.id
}

// Retain takes a new native reference to the same object.
func (h *Handle) Retain() *Handle {
	return h.retainWith(nil)
}

func (h *Handle) retainWith(after func()) *Handle {
	if h.IsNull() {
		return NullHandle(h.Kind())
	}
	id := h.fns.Retain(h.Raw())
	return track(h.kind, h.fns, id, ModeRetained, after)
}

// Release drops the native reference. Further calls do nothing.
func (h *Handle) Release() {
	if h.IsNull() || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.cleanup.Stop()
	id := h.id
	h.fns.Release(&id)
	if h.after != nil {
		h.after()
	}
	metrics.released(h.kind)
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	return h != nil && h.released.Load()
}
