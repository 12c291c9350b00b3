package emulator

import (
	"math"
	"unsafe"

	"nimbus/internal/native"
)

var diag = float32(math.Sqrt2 / 2)

// Speaker directions use the runtime's convention: +X right, +Y up, -Z ahead.
var standardLayouts = map[native.SpeakerLayoutType][]native.Vector3{
	native.SpeakerLayoutMono: {
		{Z: -1},
	},
	native.SpeakerLayoutStereo: {
		{X: -1}, {X: 1},
	},
	native.SpeakerLayoutQuadraphonic: {
		{X: -diag, Z: -diag}, {X: diag, Z: -diag},
		{X: -diag, Z: diag}, {X: diag, Z: diag},
	},
	native.SpeakerLayoutSurround51: {
		{X: -diag, Z: -diag}, {X: diag, Z: -diag}, {Z: -1}, {},
		{X: -diag, Z: diag}, {X: diag, Z: diag},
	},
	native.SpeakerLayoutSurround71: {
		{X: -diag, Z: -diag}, {X: diag, Z: -diag}, {Z: -1}, {},
		{X: -1}, {X: 1},
		{X: -diag, Z: diag}, {X: diag, Z: diag},
	},
}

var headphones = standardLayouts[native.SpeakerLayoutStereo]

var identity = native.CoordinateSpace3{
	Right: native.Vector3{X: 1},
	Up:    native.Vector3{Y: 1},
	Ahead: native.Vector3{Z: -1},
}

func speakers(l native.SpeakerLayout) ([]native.Vector3, bool) {
	if l.Type == native.SpeakerLayoutCustom {
		if l.NumSpeakers <= 0 || l.Speakers == nil {
			return nil, false
		}
		custom := unsafe.Slice(l.Speakers, l.NumSpeakers)
		return append([]native.Vector3(nil), custom...), true
	}
	dirs, ok := standardLayouts[l.Type]
	return dirs, ok
}
