// Package emulator is a Go implementation of the native entry-point table.
//
// It keeps a reference-counted handle table with the same retain/release
// semantics as the Steam Audio runtime and renders effects with a small
// gain-matrix and delay-line engine, so every effect reports a finite tail.
// It is used by tests and by the CLI when no native runtime is installed.
package emulator

import (
	"fmt"
	"sync"

	"nimbus/internal/native"
)

// Object kinds tracked by the handle table.
const (
	KindContext             = "context"
	KindHRTF                = "hrtf"
	KindEmbreeDevice        = "embree_device"
	KindOpenCLDeviceList    = "opencl_device_list"
	KindOpenCLDevice        = "opencl_device"
	KindRadeonRaysDevice    = "radeon_rays_device"
	KindTrueAudioNextDevice = "true_audio_next_device"
	KindSerializedObject    = "serialized_object"
)

// EffectKind returns the table kind used for effects of k.
func EffectKind(k native.EffectKind) string {
	return "effect:" + k.String()
}

type object struct {
	kind    string
	refs    int
	payload any
}

// Emulator owns the handle table. The zero value is not usable; call New.
type Emulator struct {
	mu        sync.Mutex
	next      native.Handle
	objects   map[native.Handle]*object
	failures  map[string]native.Status
	callbacks map[native.Callback]any
	nextCB    native.Callback

	version [3]uint32
	devices []DeviceInfo
}

// DeviceInfo describes one emulated OpenCL device.
type DeviceInfo struct {
	Platform  string
	Name      string
	Vendor    string
	Type      native.OpenCLDeviceType
	PerfScore float32
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithVersion sets the runtime version. Context creation fails with
// StatusInitialization when the requested major version differs.
func WithVersion(major, minor, patch uint32) Option {
	return func(e *Emulator) {
		e.version = [3]uint32{major, minor, patch}
	}
}

// WithOpenCLDevices replaces the emulated OpenCL device list.
func WithOpenCLDevices(devices ...DeviceInfo) Option {
	return func(e *Emulator) {
		e.devices = devices
	}
}

// New returns an emulator reporting version 4.6.1 with one GPU device.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		next:      0x1000,
		objects:   make(map[native.Handle]*object),
		failures:  make(map[string]native.Status),
		callbacks: make(map[native.Callback]any),
		nextCB:    0x7f000000,
		version:   [3]uint32{4, 6, 1},
		devices: []DeviceInfo{{
			Platform:  "Emulated OpenCL",
			Name:      "Emulated GPU",
			Vendor:    "nimbus",
			Type:      native.OpenCLDeviceGPU,
			PerfScore: 1,
		}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FailNext makes the next create of kind return status without allocating.
func (e *Emulator) FailNext(kind string, status native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[kind] = status
}

// RefCount returns the reference count of h, or 0 once it has been freed.
func (e *Emulator) RefCount(h native.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if obj, ok := e.objects[h]; ok {
		return obj.refs
	}
	return 0
}

// Live counts live objects of kind; an empty kind counts all of them.
func (e *Emulator) Live(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, obj := range e.objects {
		if kind == "" || obj.kind == kind {
			n++
		}
	}
	return n
}

// Kind returns the kind of a live handle.
func (e *Emulator) Kind(h native.Handle) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[h]
	if !ok {
		return "", false
	}
	return obj.kind, true
}

func (e *Emulator) create(kind string, out *native.Handle, build func() (any, native.Status)) native.Status {
	e.mu.Lock()
	if status, ok := e.failures[kind]; ok {
		delete(e.failures, kind)
		e.mu.Unlock()
		return status
	}
	e.mu.Unlock()

	payload, status := build()
	if status != native.StatusSuccess {
		return status
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.next += 0x10
	h := e.next
	e.objects[h] = &object{kind: kind, refs: 1, payload: payload}
	*out = h
	return native.StatusSuccess
}

func (e *Emulator) lookup(h native.Handle, kind string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[h]
	if !ok || obj.kind != kind {
		return nil, false
	}
	return obj.payload, true
}

func (e *Emulator) mustLookup(h native.Handle, kind string) any {
	p, ok := e.lookup(h, kind)
	if !ok {
		panic(fmt.Sprintf("emulator: handle %#x is not a live %s", uintptr(h), kind))
	}
	return p
}

func (e *Emulator) refs(kind string) native.RefFuncs {
	return native.RefFuncs{
		Retain: func(h native.Handle) native.Handle {
			e.mu.Lock()
			defer e.mu.Unlock()
			obj, ok := e.objects[h]
			if !ok || obj.kind != kind {
				panic(fmt.Sprintf("emulator: retain of dead %s handle %#x", kind, uintptr(h)))
			}
			obj.refs++
			return h
		},
		Release: func(h *native.Handle) {
			if h == nil || *h == 0 {
				return
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			obj, ok := e.objects[*h]
			if !ok || obj.kind != kind {
				panic(fmt.Sprintf("emulator: release of dead %s handle %#x", kind, uintptr(*h)))
			}
			obj.refs--
			if obj.refs == 0 {
				delete(e.objects, *h)
			}
			*h = 0
		},
	}
}

func (e *Emulator) newCallback(fn any) native.Callback {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCB += 0x10
	e.callbacks[e.nextCB] = fn
	return e.nextCB
}

func (e *Emulator) callback(cb native.Callback) any {
	if cb == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callbacks[cb]
}

// Library returns the entry-point table backed by e.
func (e *Emulator) Library() *native.Library {
	lib := &native.Library{
		Name: "emulator",
		ContextCreate: e.contextCreate,
		Context:       e.refs(KindContext),

		HRTFCreate: e.hrtfCreate,
		HRTF:       e.refs(KindHRTF),

		EmbreeDeviceCreate: e.embreeDeviceCreate,
		EmbreeDevice:       e.refs(KindEmbreeDevice),

		OpenCLDeviceListCreate:        e.openCLDeviceListCreate,
		OpenCLDeviceList:              e.refs(KindOpenCLDeviceList),
		OpenCLDeviceListGetNumDevices: e.openCLDeviceListGetNumDevices,
		OpenCLDeviceListGetDeviceDesc: e.openCLDeviceListGetDeviceDesc,

		OpenCLDeviceCreate: e.openCLDeviceCreate,
		OpenCLDevice:       e.refs(KindOpenCLDevice),

		RadeonRaysDeviceCreate: e.radeonRaysDeviceCreate,
		RadeonRaysDevice:       e.refs(KindRadeonRaysDevice),

		TrueAudioNextDeviceCreate: e.trueAudioNextDeviceCreate,
		TrueAudioNextDevice:       e.refs(KindTrueAudioNextDevice),

		SerializedObjectCreate:  e.serializedObjectCreate,
		SerializedObject:        e.refs(KindSerializedObject),
		SerializedObjectGetSize: e.serializedObjectGetSize,
		SerializedObjectGetData: e.serializedObjectGetData,

		ReflectionsBakerBake:       e.reflectionsBake,
		ReflectionsBakerCancelBake: e.reflectionsCancel,
		PathBakerBake:              e.pathBake,
		PathBakerCancelBake:        e.pathCancel,

		NewCallback: e.newCallback,
	}
	for k := range native.NumEffectKinds {
		lib.Effects[k] = e.effectFuncs(native.EffectKind(k))
	}
	return lib
}
