// SPDX-License-Identifier: MIT

package spatial

import (
	"errors"

	"nimbus/internal/native"
)

// Object kinds, used in error messages and metric labels.
const (
	KindContextObject          = "context"
	KindHRTFObject             = "hrtf"
	KindEmbreeDeviceObject     = "embree_device"
	KindOpenCLDeviceListObject = "opencl_device_list"
	KindOpenCLDeviceObject     = "opencl_device"
	KindRadeonRaysObject       = "radeon_rays_device"
	KindTrueAudioNextObject    = "true_audio_next_device"
	KindSerializedObject       = "serialized_object"
)

// ContextSettings configure NewContext. The zero value requests APIVersion
// with default SIMD selection and runtime messages routed to the logger.
type ContextSettings struct {
	// Version defaults to APIVersion.
	Version    Version
	SIMDLevel  native.SIMDLevel
	Validation bool
	// Quiet drops runtime log messages instead of forwarding them.
	Quiet bool
}

// Context is the root runtime object. Every other object is created against
// a context. A Context is move-only: it has no Clone and must not be used
// from more than one goroutine at a time.
type Context struct {
	lib *native.Library
	h   *Handle
}

// NewContext creates a runtime context for the requested API version. The
// runtime rejects a version it cannot serve, which surfaces as
// ErrInitialization.
func NewContext(lib *native.Library, settings ContextSettings) (*Context, error) {
	if err := lib.Validate(); err != nil {
		return nil, &Error{Kind: KindInitialization, Op: "create context", Detail: err.Error()}
	}
	want := settings.Version
	if want == (Version{}) {
		want = APIVersion
	}
	ns := native.ContextSettings{
		Version:   want.Packed(),
		SIMDLevel: settings.SIMDLevel,
	}
	if settings.Validation {
		ns.Flags |= native.ContextFlagValidation
	}
	if !settings.Quiet {
		ns.LogCallback = trampolinesFor(lib).log
	}

	h, err := Create(KindContextObject, lib.Context, func(out *native.Handle) native.Status {
		return lib.ContextCreate(&ns, out)
	})
	if errors.Is(err, ErrInitialization) {
		return nil, Errorf(KindInitialization, "create context", "runtime %s rejected API version %s", lib.Name, want)
	}
	if err != nil {
		return nil, err
	}
	handleLog.Debugf("context created against %s for API %s", lib.Name, want)
	return &Context{lib: lib, h: h}, nil
}

// Library returns the entry-point table the context was created from.
func (c *Context) Library() *native.Library { return c.lib }

// Raw returns the native context handle.
func (c *Context) Raw() native.Handle { return c.h.Raw() }

// Handle exposes the ownership wrapper.
func (c *Context) Handle() *Handle { return c.h }

// Release drops the context reference. Objects created from it hold their
// own references to the runtime and stay valid.
func (c *Context) Release() { c.h.Release() }
