package spatial

import (
	"nimbus/internal/native"
)

// Shareable marks resource types that may be cloned and used from several
// goroutines. Their only mutable state is the native reference count.
type Shareable interface {
	shareable()
}

var (
	_ Shareable = (*EmbreeDevice)(nil)
	_ Shareable = (*OpenCLDeviceList)(nil)
	_ Shareable = (*OpenCLDevice)(nil)
	_ Shareable = (*RadeonRaysDevice)(nil)
	_ Shareable = (*TrueAudioNextDevice)(nil)
	_ Shareable = (*HRTF)(nil)
	_ Shareable = (*SerializedObject)(nil)
)

// resource is embedded by every shareable type.
type resource struct {
	h *Handle
}

func (resource) shareable() {}

// Raw returns the native handle, or 0 for a nil or null resource.
func (r *resource) Raw() native.Handle {
	if r == nil {
		return 0
	}
	return r.h.Raw()
}

// Release drops this reference. Clones are unaffected.
func (r *resource) Release() {
	if r != nil {
		r.h.Release()
	}
}

// IsNull reports whether the resource refers to nothing.
func (r *resource) IsNull() bool { return r == nil || r.h.IsNull() }

// Handle exposes the ownership wrapper.
func (r *resource) Handle() *Handle {
	if r == nil {
		return nil
	}
	return r.h
}

// EmbreeDevice is the CPU ray tracer device.
type EmbreeDevice struct{ resource }

// NewEmbreeDevice creates an Embree device with default settings.
func NewEmbreeDevice(ctx *Context) (*EmbreeDevice, error) {
	lib := ctx.lib
	h, err := Create(KindEmbreeDeviceObject, lib.EmbreeDevice, func(out *native.Handle) native.Status {
		return lib.EmbreeDeviceCreate(ctx.Raw(), nil, out)
	})
	if err != nil {
		return nil, err
	}
	return &EmbreeDevice{resource{h}}, nil
}

// Clone returns a second reference to the same device.
func (d *EmbreeDevice) Clone() *EmbreeDevice { return &EmbreeDevice{resource{d.h.Retain()}} }

// OpenCLDeviceSettings select which OpenCL devices a list enumerates.
type OpenCLDeviceSettings struct {
	Type                   native.OpenCLDeviceType
	NumCUsToReserve        int
	FractionCUsForIRUpdate float32
	RequiresTAN            bool
}

// OpenCLDeviceDesc describes one enumerated device.
type OpenCLDeviceDesc struct {
	PlatformName      string
	PlatformVendor    string
	PlatformVersion   string
	DeviceName        string
	DeviceVendor      string
	DeviceVersion     string
	Type              native.OpenCLDeviceType
	NumConvolutionCUs int
	NumIRUpdateCUs    int
	Granularity       int
	PerfScore         float32
}

// OpenCLDeviceList enumerates the OpenCL devices matching a filter.
type OpenCLDeviceList struct {
	resource
	lib *native.Library
}

// NewOpenCLDeviceList enumerates the devices matching settings.
func NewOpenCLDeviceList(ctx *Context, settings OpenCLDeviceSettings) (*OpenCLDeviceList, error) {
	lib := ctx.lib
	ns := native.OpenCLDeviceSettings{
		Type:                   settings.Type,
		NumCUsToReserve:        int32(settings.NumCUsToReserve),
		FractionCUsForIRUpdate: settings.FractionCUsForIRUpdate,
		RequiresTAN:            native.BoolOf(settings.RequiresTAN),
	}
	h, err := Create(KindOpenCLDeviceListObject, lib.OpenCLDeviceList, func(out *native.Handle) native.Status {
		return lib.OpenCLDeviceListCreate(ctx.Raw(), &ns, out)
	})
	if err != nil {
		return nil, err
	}
	return &OpenCLDeviceList{resource: resource{h}, lib: lib}, nil
}

// Clone returns a second reference to the same list.
func (l *OpenCLDeviceList) Clone() *OpenCLDeviceList {
	return &OpenCLDeviceList{resource: resource{l.h.Retain()}, lib: l.lib}
}

// Len returns the number of devices in the list.
func (l *OpenCLDeviceList) Len() int {
	return int(l.lib.OpenCLDeviceListGetNumDevices(l.Raw()))
}

// Descriptor returns the description of device i.
func (l *OpenCLDeviceList) Descriptor(i int) (OpenCLDeviceDesc, error) {
	if n := l.Len(); i < 0 || i >= n {
		return OpenCLDeviceDesc{}, Errorf(KindOutOfBounds, "opencl device descriptor", "index %d out of range [0, %d)", i, n)
	}
	var d native.OpenCLDeviceDesc
	l.lib.OpenCLDeviceListGetDeviceDesc(l.Raw(), int32(i), &d)
	return OpenCLDeviceDesc{
		PlatformName:      native.GoString(d.PlatformName),
		PlatformVendor:    native.GoString(d.PlatformVendor),
		PlatformVersion:   native.GoString(d.PlatformVersion),
		DeviceName:        native.GoString(d.DeviceName),
		DeviceVendor:      native.GoString(d.DeviceVendor),
		DeviceVersion:     native.GoString(d.DeviceVersion),
		Type:              d.Type,
		NumConvolutionCUs: int(d.NumConvolutionCUs),
		NumIRUpdateCUs:    int(d.NumIRUpdateCUs),
		Granularity:       int(d.Granularity),
		PerfScore:         d.PerfScore,
	}, nil
}

// Descriptors returns every device description in list order.
func (l *OpenCLDeviceList) Descriptors() []OpenCLDeviceDesc {
	out := make([]OpenCLDeviceDesc, 0, l.Len())
	for i := range l.Len() {
		d, err := l.Descriptor(i)
		if err != nil {
			break
		}
		out = append(out, d)
	}
	return out
}

// OpenCLDevice is one opened OpenCL device.
type OpenCLDevice struct{ resource }

// NewOpenCLDevice opens entry index of list.
func NewOpenCLDevice(ctx *Context, list *OpenCLDeviceList, index int) (*OpenCLDevice, error) {
	if n := list.Len(); index < 0 || index >= n {
		return nil, Errorf(KindOutOfBounds, "create "+KindOpenCLDeviceObject, "index %d out of range [0, %d)", index, n)
	}
	lib := ctx.lib
	h, err := Create(KindOpenCLDeviceObject, lib.OpenCLDevice, func(out *native.Handle) native.Status {
		return lib.OpenCLDeviceCreate(ctx.Raw(), list.Raw(), int32(index), out)
	})
	if err != nil {
		return nil, err
	}
	return &OpenCLDevice{resource{h}}, nil
}

// Clone returns a second reference to the same device.
func (d *OpenCLDevice) Clone() *OpenCLDevice { return &OpenCLDevice{resource{d.h.Retain()}} }

// RadeonRaysDevice is the GPU ray tracer device.
type RadeonRaysDevice struct{ resource }

// NewRadeonRaysDevice creates a ray tracer on the opened OpenCL device dev.
func NewRadeonRaysDevice(ctx *Context, dev *OpenCLDevice) (*RadeonRaysDevice, error) {
	lib := ctx.lib
	h, err := Create(KindRadeonRaysObject, lib.RadeonRaysDevice, func(out *native.Handle) native.Status {
		return lib.RadeonRaysDeviceCreate(dev.Raw(), nil, out)
	})
	if err != nil {
		return nil, err
	}
	return &RadeonRaysDevice{resource{h}}, nil
}

// Clone returns a second reference to the same device.
func (d *RadeonRaysDevice) Clone() *RadeonRaysDevice {
	return &RadeonRaysDevice{resource{d.h.Retain()}}
}

// TrueAudioNextSettings size the GPU convolution engine.
type TrueAudioNextSettings struct {
	FrameSize  int
	IRSize     int
	Order      int
	MaxSources int
}

// TrueAudioNextDevice is the GPU convolution device.
type TrueAudioNextDevice struct{ resource }

// NewTrueAudioNextDevice creates a convolution engine on dev.
func NewTrueAudioNextDevice(ctx *Context, dev *OpenCLDevice, settings TrueAudioNextSettings) (*TrueAudioNextDevice, error) {
	lib := ctx.lib
	ns := native.TrueAudioNextDeviceSettings{
		FrameSize:  int32(settings.FrameSize),
		IRSize:     int32(settings.IRSize),
		Order:      int32(settings.Order),
		MaxSources: int32(settings.MaxSources),
	}
	h, err := Create(KindTrueAudioNextObject, lib.TrueAudioNextDevice, func(out *native.Handle) native.Status {
		return lib.TrueAudioNextDeviceCreate(dev.Raw(), &ns, out)
	})
	if err != nil {
		return nil, err
	}
	return &TrueAudioNextDevice{resource{h}}, nil
}

// Clone returns a second reference to the same device.
func (d *TrueAudioNextDevice) Clone() *TrueAudioNextDevice {
	return &TrueAudioNextDevice{resource{d.h.Retain()}}
}
