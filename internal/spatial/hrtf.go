package spatial

import (
	"runtime"

	"nimbus/internal/native"
)

// HRTFSettings select the head-related transfer function to load.
// Leaving both SOFA fields empty selects the built-in HRTF.
type HRTFSettings struct {
	// Volume scales the HRTF. Zero means unity.
	Volume        float32
	SOFAFile      string
	SOFAData      []byte
	Normalization native.HRTFNormType
}

// HRTF is a loaded head-related transfer function.
type HRTF struct{ resource }

// NewHRTF loads an HRTF for the given audio settings.
func NewHRTF(ctx *Context, audio AudioSettings, settings HRTFSettings) (*HRTF, error) {
	if err := audio.Validate(); err != nil {
		return nil, err
	}
	lib := ctx.lib
	na := audio.Native()
	ns := native.HRTFSettings{
		Type:     native.HRTFDefault,
		Volume:   settings.Volume,
		NormType: settings.Normalization,
	}
	if ns.Volume == 0 {
		ns.Volume = 1
	}

	var pin runtime.Pinner
	defer pin.Unpin()
	switch {
	case settings.SOFAFile != "":
		name := native.CString(settings.SOFAFile)
		pin.Pin(&name[0])
		ns.Type = native.HRTFSOFA
		ns.SOFAFileName = &name[0]
	case len(settings.SOFAData) > 0:
		pin.Pin(&settings.SOFAData[0])
		ns.Type = native.HRTFSOFA
		ns.SOFAData = &settings.SOFAData[0]
		ns.SOFADataSize = int32(len(settings.SOFAData))
	}

	h, err := Create(KindHRTFObject, lib.HRTF, func(out *native.Handle) native.Status {
		return lib.HRTFCreate(ctx.Raw(), &na, &ns, out)
	})
	if err != nil {
		return nil, err
	}
	return &HRTF{resource{h}}, nil
}

// Clone returns a second reference to the same HRTF.
func (h *HRTF) Clone() *HRTF { return &HRTF{resource{h.h.Retain()}} }
