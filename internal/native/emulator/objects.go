package emulator

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"nimbus/internal/native"
)

type contextState struct {
	log        native.Callback
	validation bool
	// set by the cancel entry points, cleared when a bake starts
	cancelReflections atomic.Bool
	cancelPaths       atomic.Bool
}

type hrtfState struct {
	volume float32
	norm   native.HRTFNormType
}

type deviceList struct {
	descs []native.OpenCLDeviceDesc
	// keeps the NUL-terminated strings referenced by descs alive
	strs [][]byte
}

type serializedState struct {
	data []byte
}

func (e *Emulator) logf(ctx native.Handle, level native.LogLevel, format string, args ...any) {
	p, ok := e.lookup(ctx, KindContext)
	if !ok {
		return
	}
	fn, ok := e.callback(p.(*contextState).log).(native.LogFunc)
	if !ok {
		return
	}
	msg := native.CString(fmt.Sprintf(format, args...))
	fn(level, &msg[0])
}

func (e *Emulator) liveContext(ctx native.Handle) bool {
	_, ok := e.lookup(ctx, KindContext)
	return ok
}

func (e *Emulator) contextCreate(settings *native.ContextSettings, out *native.Handle) native.Status {
	if settings == nil {
		return native.StatusFailure
	}
	status := e.create(KindContext, out, func() (any, native.Status) {
		if settings.Version>>16 != e.version[0] {
			return nil, native.StatusInitialization
		}
		return &contextState{
			log:        settings.LogCallback,
			validation: settings.Flags&native.ContextFlagValidation != 0,
		}, native.StatusSuccess
	})
	if status == native.StatusSuccess {
		e.logf(*out, native.LogInfo, "emulated runtime %d.%d.%d ready", e.version[0], e.version[1], e.version[2])
	}
	return status
}

func validAudio(audio *native.AudioSettings) bool {
	return audio != nil && audio.SamplingRate > 0 && audio.FrameSize > 0
}

func (e *Emulator) hrtfCreate(ctx native.Handle, audio *native.AudioSettings, settings *native.HRTFSettings, out *native.Handle) native.Status {
	if !e.liveContext(ctx) || !validAudio(audio) || settings == nil {
		return native.StatusFailure
	}
	if settings.Type == native.HRTFSOFA {
		switch {
		case settings.SOFAFileName != nil:
			name := native.GoString(settings.SOFAFileName)
			if _, err := os.Stat(name); err != nil {
				e.logf(ctx, native.LogError, "unable to load SOFA file %s", name)
				return native.StatusFailure
			}
		case settings.SOFAData == nil || settings.SOFADataSize <= 0:
			return native.StatusFailure
		}
	}
	return e.create(KindHRTF, out, func() (any, native.Status) {
		return &hrtfState{volume: settings.Volume, norm: settings.NormType}, native.StatusSuccess
	})
}

func (e *Emulator) embreeDeviceCreate(ctx native.Handle, _ unsafe.Pointer, out *native.Handle) native.Status {
	if !e.liveContext(ctx) {
		return native.StatusFailure
	}
	return e.create(KindEmbreeDevice, out, func() (any, native.Status) {
		return struct{}{}, native.StatusSuccess
	})
}

func (e *Emulator) openCLDeviceListCreate(ctx native.Handle, settings *native.OpenCLDeviceSettings, out *native.Handle) native.Status {
	if !e.liveContext(ctx) || settings == nil {
		return native.StatusFailure
	}
	return e.create(KindOpenCLDeviceList, out, func() (any, native.Status) {
		list := &deviceList{}
		str := func(s string) *byte {
			b := native.CString(s)
			list.strs = append(list.strs, b)
			return &b[0]
		}
		for i, d := range e.devices {
			if settings.Type != native.OpenCLDeviceAny && settings.Type != d.Type {
				continue
			}
			list.descs = append(list.descs, native.OpenCLDeviceDesc{
				Platform:          uintptr(i + 1),
				PlatformName:      str(d.Platform),
				PlatformVendor:    str(d.Vendor),
				PlatformVersion:   str("OpenCL 1.2"),
				Device:            uintptr(i + 1),
				DeviceName:        str(d.Name),
				DeviceVendor:      str(d.Vendor),
				DeviceVersion:     str("OpenCL 1.2"),
				Type:              d.Type,
				NumConvolutionCUs: 8 - settings.NumCUsToReserve,
				NumIRUpdateCUs:    int32(float32(8) * settings.FractionCUsForIRUpdate),
				Granularity:       1,
				PerfScore:         d.PerfScore,
			})
		}
		return list, native.StatusSuccess
	})
}

func (e *Emulator) openCLDeviceListGetNumDevices(list native.Handle) int32 {
	return int32(len(e.mustLookup(list, KindOpenCLDeviceList).(*deviceList).descs))
}

func (e *Emulator) openCLDeviceListGetDeviceDesc(list native.Handle, index int32, desc *native.OpenCLDeviceDesc) {
	descs := e.mustLookup(list, KindOpenCLDeviceList).(*deviceList).descs
	if index < 0 || int(index) >= len(descs) {
		panic(fmt.Sprintf("emulator: device index %d out of range [0,%d)", index, len(descs)))
	}
	*desc = descs[index]
}

func (e *Emulator) openCLDeviceCreate(ctx, list native.Handle, index int32, out *native.Handle) native.Status {
	if !e.liveContext(ctx) {
		return native.StatusFailure
	}
	p, ok := e.lookup(list, KindOpenCLDeviceList)
	if !ok {
		return native.StatusFailure
	}
	descs := p.(*deviceList).descs
	if index < 0 || int(index) >= len(descs) {
		return native.StatusFailure
	}
	desc := descs[index]
	return e.create(KindOpenCLDevice, out, func() (any, native.Status) {
		return desc, native.StatusSuccess
	})
}

func (e *Emulator) radeonRaysDeviceCreate(openCL native.Handle, _ unsafe.Pointer, out *native.Handle) native.Status {
	if _, ok := e.lookup(openCL, KindOpenCLDevice); !ok {
		return native.StatusInitialization
	}
	return e.create(KindRadeonRaysDevice, out, func() (any, native.Status) {
		return struct{}{}, native.StatusSuccess
	})
}

func (e *Emulator) trueAudioNextDeviceCreate(openCL native.Handle, settings *native.TrueAudioNextDeviceSettings, out *native.Handle) native.Status {
	if _, ok := e.lookup(openCL, KindOpenCLDevice); !ok {
		return native.StatusInitialization
	}
	if settings == nil || settings.FrameSize <= 0 || settings.IRSize <= 0 || settings.Order < 0 || settings.MaxSources <= 0 {
		return native.StatusFailure
	}
	cfg := *settings
	return e.create(KindTrueAudioNextDevice, out, func() (any, native.Status) {
		return cfg, native.StatusSuccess
	})
}

func (e *Emulator) serializedObjectCreate(ctx native.Handle, settings *native.SerializedObjectSettings, out *native.Handle) native.Status {
	if !e.liveContext(ctx) {
		return native.StatusFailure
	}
	return e.create(KindSerializedObject, out, func() (any, native.Status) {
		s := &serializedState{}
		// The object aliases caller memory, as the native runtime does.
		if settings != nil && settings.Data != nil && settings.Size > 0 {
			s.data = unsafe.Slice(settings.Data, settings.Size)
		}
		return s, native.StatusSuccess
	})
}

func (e *Emulator) serializedObjectGetSize(obj native.Handle) uintptr {
	return uintptr(len(e.mustLookup(obj, KindSerializedObject).(*serializedState).data))
}

func (e *Emulator) serializedObjectGetData(obj native.Handle) *byte {
	data := e.mustLookup(obj, KindSerializedObject).(*serializedState).data
	if len(data) == 0 {
		return nil
	}
	return &data[0]
}

// reflectionsBake reports progress once per bounce, clamped to [1,16] steps.
func (e *Emulator) reflectionsBake(ctx native.Handle, params *native.ReflectionsBakeParams, progress native.Callback, userData uintptr) {
	if !e.liveContext(ctx) || params == nil {
		panic("emulator: bake without a live context")
	}
	st := e.mustLookup(ctx, KindContext).(*contextState)
	if done, steps := e.runBake(&st.cancelReflections, int(params.NumBounces), progress, userData); done == steps {
		e.logf(ctx, native.LogDebug, "baked %d bounces", steps)
	} else {
		e.logf(ctx, native.LogDebug, "reflections bake canceled after %d of %d bounces", done, steps)
	}
}

func (e *Emulator) reflectionsCancel(ctx native.Handle) {
	if p, ok := e.lookup(ctx, KindContext); ok {
		p.(*contextState).cancelReflections.Store(true)
	}
}

// pathBake reports progress once per sample, clamped to [1,16] steps.
func (e *Emulator) pathBake(ctx native.Handle, params *native.PathBakeParams, progress native.Callback, userData uintptr) {
	if !e.liveContext(ctx) || params == nil {
		panic("emulator: bake without a live context")
	}
	st := e.mustLookup(ctx, KindContext).(*contextState)
	if done, steps := e.runBake(&st.cancelPaths, int(params.NumSamples), progress, userData); done == steps {
		e.logf(ctx, native.LogDebug, "baked paths with %d samples", steps)
	} else {
		e.logf(ctx, native.LogDebug, "path bake canceled after %d of %d samples", done, steps)
	}
}

func (e *Emulator) pathCancel(ctx native.Handle) {
	if p, ok := e.lookup(ctx, KindContext); ok {
		p.(*contextState).cancelPaths.Store(true)
	}
}

// runBake steps through a bake, checking canceled before every step. It
// returns the steps completed and the steps planned.
func (e *Emulator) runBake(canceled *atomic.Bool, steps int, progress native.Callback, userData uintptr) (done, total int) {
	canceled.Store(false)
	total = max(1, min(steps, 16))
	fn, _ := e.callback(progress).(native.ProgressFunc)
	for done < total {
		if canceled.Load() {
			return done, total
		}
		done++
		if fn != nil {
			fn(float32(done)/float32(total), userData)
		}
	}
	return done, total
}
