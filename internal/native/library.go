package native

import (
	"fmt"
	"reflect"
	"unsafe"
)

// EffectKind enumerates the effect families that share one entry-point shape.
type EffectKind int

const (
	EffectBinaural EffectKind = iota
	EffectPanning
	EffectVirtualSurround
	EffectDirect
	EffectAmbisonicsEncode
	EffectAmbisonicsDecode
	EffectAmbisonicsPanning
	EffectAmbisonicsBinaural
	EffectAmbisonicsRotation

	NumEffectKinds = int(iota)
)

var effectSymbols = [NumEffectKinds]string{
	EffectBinaural:           "Binaural",
	EffectPanning:            "Panning",
	EffectVirtualSurround:    "VirtualSurround",
	EffectDirect:             "Direct",
	EffectAmbisonicsEncode:   "AmbisonicsEncode",
	EffectAmbisonicsDecode:   "AmbisonicsDecode",
	EffectAmbisonicsPanning:  "AmbisonicsPanning",
	EffectAmbisonicsBinaural: "AmbisonicsBinaural",
	EffectAmbisonicsRotation: "AmbisonicsRotation",
}

// String returns the symbol stem of the kind, e.g. "AmbisonicsEncode".
func (k EffectKind) String() string {
	if k < 0 || int(k) >= NumEffectKinds {
		return fmt.Sprintf("EffectKind(%d)", int(k))
	}
	return effectSymbols[k]
}

// RefFuncs is the retain/release pair every reference-counted type exposes.
// Release takes the handle by address and clears it.
type RefFuncs struct {
	Retain  func(h Handle) Handle
	Release func(h *Handle)
}

// EffectFuncs is the entry-point set of one effect kind. Settings and params
// point at the kind's settings and params structs.
type EffectFuncs struct {
	Create      func(ctx Handle, audio *AudioSettings, settings unsafe.Pointer, out *Handle) Status
	RefFuncs
	Reset       func(effect Handle)
	Apply       func(effect Handle, params unsafe.Pointer, in, out *AudioBuffer) EffectState
	GetTail     func(effect Handle, out *AudioBuffer) EffectState
	GetTailSize func(effect Handle) int32
}

// LogFunc is the Go shape of the context log callback.
type LogFunc = func(level LogLevel, message *byte)

// ProgressFunc is the Go shape of the progress callback used by bake calls.
type ProgressFunc = func(progress float32, userData uintptr)

// Library is the table of native entry points. It is filled either by Load
// from a shared object or by a Go implementation such as the emulator.
type Library struct {
	Name string

	ContextCreate func(settings *ContextSettings, out *Handle) Status
	Context       RefFuncs

	HRTFCreate func(ctx Handle, audio *AudioSettings, settings *HRTFSettings, out *Handle) Status
	HRTF       RefFuncs

	EmbreeDeviceCreate func(ctx Handle, settings unsafe.Pointer, out *Handle) Status
	EmbreeDevice       RefFuncs

	OpenCLDeviceListCreate        func(ctx Handle, settings *OpenCLDeviceSettings, out *Handle) Status
	OpenCLDeviceList              RefFuncs
	OpenCLDeviceListGetNumDevices func(list Handle) int32
	OpenCLDeviceListGetDeviceDesc func(list Handle, index int32, desc *OpenCLDeviceDesc)

	OpenCLDeviceCreate func(ctx Handle, list Handle, index int32, out *Handle) Status
	OpenCLDevice       RefFuncs

	RadeonRaysDeviceCreate func(openCL Handle, settings unsafe.Pointer, out *Handle) Status
	RadeonRaysDevice       RefFuncs

	TrueAudioNextDeviceCreate func(openCL Handle, settings *TrueAudioNextDeviceSettings, out *Handle) Status
	TrueAudioNextDevice       RefFuncs

	SerializedObjectCreate  func(ctx Handle, settings *SerializedObjectSettings, out *Handle) Status
	SerializedObject        RefFuncs
	SerializedObjectGetSize func(obj Handle) uintptr
	SerializedObjectGetData func(obj Handle) *byte

	ReflectionsBakerBake       func(ctx Handle, params *ReflectionsBakeParams, progress Callback, userData uintptr)
	ReflectionsBakerCancelBake func(ctx Handle)
	PathBakerBake              func(ctx Handle, params *PathBakeParams, progress Callback, userData uintptr)
	PathBakerCancelBake        func(ctx Handle)

	Effects [NumEffectKinds]EffectFuncs

	// NewCallback turns a Go func into a native function pointer.
	NewCallback func(fn any) Callback
}

// Validate reports the first entry point left nil.
func (l *Library) Validate() error {
	if l == nil {
		return fmt.Errorf("native library is nil")
	}
	if err := checkFuncs(reflect.ValueOf(l).Elem(), ""); err != nil {
		return fmt.Errorf("native library %q: %w", l.Name, err)
	}
	return nil
}

func checkFuncs(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range v.NumField() {
		f := v.Field(i)
		name := prefix + t.Field(i).Name
		switch f.Kind() {
		case reflect.Func:
			if f.IsNil() {
				return fmt.Errorf("missing entry point %s", name)
			}
		case reflect.Struct:
			if err := checkFuncs(f, name+"."); err != nil {
				return err
			}
		case reflect.Array:
			for j := range f.Len() {
				if err := checkFuncs(f.Index(j), fmt.Sprintf("%s[%s].", name, EffectKind(j))); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GoString copies a NUL-terminated native string.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// CString returns s as a NUL-terminated byte slice.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
