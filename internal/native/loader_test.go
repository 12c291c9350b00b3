//go:build darwin || linux

package native

import (
	"fmt"
	"reflect"
	"runtime"
	"testing"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coreExports lists the symbols the Steam Audio 4.6 core library exports
// for the API surface bound here. It has no version symbol.
func coreExports() map[string]bool {
	names := []string{
		"iplContextCreate", "iplContextRetain", "iplContextRelease",
		"iplHRTFCreate", "iplHRTFRetain", "iplHRTFRelease",
		"iplEmbreeDeviceCreate", "iplEmbreeDeviceRetain", "iplEmbreeDeviceRelease",
		"iplOpenCLDeviceListCreate", "iplOpenCLDeviceListRetain", "iplOpenCLDeviceListRelease",
		"iplOpenCLDeviceListGetNumDevices", "iplOpenCLDeviceListGetDeviceDesc",
		"iplOpenCLDeviceCreate", "iplOpenCLDeviceRetain", "iplOpenCLDeviceRelease",
		"iplRadeonRaysDeviceCreate", "iplRadeonRaysDeviceRetain", "iplRadeonRaysDeviceRelease",
		"iplTrueAudioNextDeviceCreate", "iplTrueAudioNextDeviceRetain", "iplTrueAudioNextDeviceRelease",
		"iplSerializedObjectCreate", "iplSerializedObjectRetain", "iplSerializedObjectRelease",
		"iplSerializedObjectGetSize", "iplSerializedObjectGetData",
		"iplReflectionsBakerBake", "iplReflectionsBakerCancelBake",
		"iplPathBakerBake", "iplPathBakerCancelBake",
	}
	for _, fx := range []string{
		"Binaural", "Panning", "VirtualSurround", "Direct",
		"AmbisonicsEncode", "AmbisonicsDecode", "AmbisonicsPanning",
		"AmbisonicsBinaural", "AmbisonicsRotation",
	} {
		for _, op := range []string{"Create", "Retain", "Release", "Reset", "Apply", "GetTail", "GetTailSize"} {
			names = append(names, "ipl"+fx+"Effect"+op)
		}
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// fakeResolver behaves like RegisterLibFunc against a library exporting
// only names: unknown symbols panic, known ones get a placeholder func.
func fakeResolver(names map[string]bool, seen *[]string) func(fptr any, name string) {
	return func(fptr any, name string) {
		if !names[name] {
			panic(fmt.Sprintf("undefined symbol: %s", name))
		}
		*seen = append(*seen, name)
		fn := reflect.ValueOf(fptr).Elem()
		fn.Set(reflect.MakeFunc(fn.Type(), func([]reflect.Value) []reflect.Value {
			panic("placeholder entry point called: " + name)
		}))
	}
}

func TestBindSymbolsAgainstCoreExports(t *testing.T) {
	t.Parallel()

	exports := coreExports()
	var seen []string
	lib := &Library{Name: "core"}
	require.NotPanics(t, func() { bindSymbols(lib, fakeResolver(exports, &seen)) })
	lib.NewCallback = func(any) Callback { return 0 }

	require.NoError(t, lib.Validate())
	assert.Len(t, seen, len(exports))
	assert.NotContains(t, seen, "iplGetVersion")
}

func TestBindFailsOnMissingSymbol(t *testing.T) {
	t.Parallel()

	exports := coreExports()
	delete(exports, "iplPathBakerCancelBake")
	var seen []string
	assert.PanicsWithValue(t, "undefined symbol: iplPathBakerCancelBake", func() {
		bindSymbols(&Library{}, fakeResolver(exports, &seen))
	})
}

func TestBindReportsFirstMissingSymbol(t *testing.T) {
	handle, err := purego.Dlopen(libcName(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		t.Skipf("no system C library to bind against: %v", err)
	}
	defer purego.Dlclose(handle)

	lib, err := bind(handle)
	assert.Nil(t, lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind phonon symbols")
	assert.Contains(t, err.Error(), "iplContextCreate")
}

func TestLoadTriesEveryCandidate(t *testing.T) {
	_, err := load([]string{"/nonexistent/libphonon.so", "/nonexistent/other/libphonon.so"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load phonon library")
}

func libcName() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}
