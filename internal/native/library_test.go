package native

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Binaural", EffectBinaural.String())
	assert.Equal(t, "AmbisonicsRotation", EffectAmbisonicsRotation.String())
	assert.Equal(t, "EffectKind(42)", EffectKind(42).String())
}

func TestValidateReportsMissingEntryPoint(t *testing.T) {
	t.Parallel()

	var nilLib *Library
	require.Error(t, nilLib.Validate())

	lib := &Library{Name: "partial"}
	err := lib.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"partial"`)
	assert.Contains(t, err.Error(), "ContextCreate")
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "OpenCL", "Radeon Rays 4.1"} {
		b := CString(s)
		require.Len(t, b, len(s)+1)
		assert.Equal(t, byte(0), b[len(s)])
		assert.Equal(t, s, GoString(&b[0]))
	}
	assert.Equal(t, "", GoString(nil))
}

func TestBoolOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, True, BoolOf(true))
	assert.Equal(t, False, BoolOf(false))
}

func TestAudioBufferLayout(t *testing.T) {
	t.Parallel()

	// Matches IPLAudioBuffer: two int32 counts followed by a pointer.
	var b AudioBuffer
	assert.Equal(t, uintptr(0), unsafe.Offsetof(b.NumChannels))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(b.NumSamples))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(b.Data))
}
