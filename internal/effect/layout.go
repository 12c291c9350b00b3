package effect

import (
	"fmt"
	"strings"

	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// SpeakerLayout is a standard speaker arrangement or a custom list of
// speaker directions.
type SpeakerLayout struct {
	Type     native.SpeakerLayoutType
	Speakers []Vector3
}

var (
	Mono         = SpeakerLayout{Type: native.SpeakerLayoutMono}
	Stereo       = SpeakerLayout{Type: native.SpeakerLayoutStereo}
	Quadraphonic = SpeakerLayout{Type: native.SpeakerLayoutQuadraphonic}
	Surround51   = SpeakerLayout{Type: native.SpeakerLayoutSurround51}
	Surround71   = SpeakerLayout{Type: native.SpeakerLayoutSurround71}
)

// CustomLayout returns a layout with one speaker per direction.
func CustomLayout(directions ...Vector3) SpeakerLayout {
	return SpeakerLayout{Type: native.SpeakerLayoutCustom, Speakers: directions}
}

// NumChannels returns the number of speakers.
func (l SpeakerLayout) NumChannels() int {
	switch l.Type {
	case native.SpeakerLayoutMono:
		return 1
	case native.SpeakerLayoutStereo:
		return 2
	case native.SpeakerLayoutQuadraphonic:
		return 4
	case native.SpeakerLayoutSurround51:
		return 6
	case native.SpeakerLayoutSurround71:
		return 8
	default:
		return len(l.Speakers)
	}
}

func (l SpeakerLayout) String() string {
	switch l.Type {
	case native.SpeakerLayoutMono:
		return "mono"
	case native.SpeakerLayoutStereo:
		return "stereo"
	case native.SpeakerLayoutQuadraphonic:
		return "quad"
	case native.SpeakerLayoutSurround51:
		return "5.1"
	case native.SpeakerLayoutSurround71:
		return "7.1"
	default:
		return fmt.Sprintf("custom(%d)", len(l.Speakers))
	}
}

// ParseLayout accepts the names printed by SpeakerLayout.String for the
// standard layouts.
func ParseLayout(s string) (SpeakerLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mono":
		return Mono, nil
	case "stereo":
		return Stereo, nil
	case "quad", "quadraphonic":
		return Quadraphonic, nil
	case "5.1", "surround51":
		return Surround51, nil
	case "7.1", "surround71":
		return Surround71, nil
	default:
		return SpeakerLayout{}, fmt.Errorf("unknown speaker layout %q", s)
	}
}

// toNative returns the ABI form and the pointers that must be pinned while
// it is passed to a native call.
func (l SpeakerLayout) toNative() (native.SpeakerLayout, []any) {
	nl := native.SpeakerLayout{Type: l.Type}
	if l.Type != native.SpeakerLayoutCustom || len(l.Speakers) == 0 {
		return nl, nil
	}
	nl.NumSpeakers = int32(len(l.Speakers))
	nl.Speakers = &l.Speakers[0]
	return nl, []any{nl.Speakers}
}

func (l SpeakerLayout) validate(op string) error {
	if l.NumChannels() == 0 {
		return spatial.Errorf(spatial.KindShapeMismatch, op, "speaker layout %s has no speakers", l)
	}
	return nil
}
