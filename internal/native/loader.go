//go:build darwin || linux

package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// EnvLibraryPath overrides every other library search location.
const EnvLibraryPath = "NIMBUS_PHONON_LIB"

var (
	loadOnce sync.Once
	loaded   *Library
	loadErr  error
)

// Load opens the native runtime and binds every entry point. The first call
// wins; later calls return the same library or error regardless of path.
func Load(path string) (*Library, error) {
	loadOnce.Do(func() {
		loaded, loadErr = load(libraryPaths(path))
	})
	return loaded, loadErr
}

func load(paths []string) (*Library, error) {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		lib, err := bind(handle)
		if err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		lib.Name = path
		return lib, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to load phonon library: %w", lastErr)
	}
	return nil, errors.New("phonon library not found in any standard location")
}

func libraryName() string {
	if runtime.GOOS == "darwin" {
		return "libphonon.dylib"
	}
	return "libphonon.so"
}

func libraryPaths(configured string) []string {
	name := libraryName()
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	if configured != "" {
		paths = append(paths, configured)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, name), filepath.Join(dir, "..", "lib", name))
	}
	paths = append(paths, name, filepath.Join("/usr/local/lib", name))
	if runtime.GOOS == "darwin" {
		paths = append(paths, filepath.Join("/opt/homebrew/lib", name))
	} else {
		paths = append(paths, filepath.Join("/usr/lib", name))
	}
	return paths
}

// bind registers every symbol. RegisterLibFunc panics on a missing symbol,
// which is turned into an error so the next candidate can be tried.
func bind(handle uintptr) (lib *Library, err error) {
	defer func() {
		if r := recover(); r != nil {
			lib, err = nil, fmt.Errorf("failed to bind phonon symbols: %v", r)
		}
	}()

	lib = &Library{}
	bindSymbols(lib, func(fptr any, name string) {
		purego.RegisterLibFunc(fptr, handle, name)
	})
	lib.NewCallback = func(fn any) Callback {
		return Callback(purego.NewCallback(fn))
	}
	return lib, nil
}

// bindSymbols resolves every entry point of the runtime's C API through reg.
// The version is not queried: the runtime exports no version symbol and
// checks the packed version passed to iplContextCreate instead.
func bindSymbols(lib *Library, reg func(fptr any, name string)) {
	refs := func(r *RefFuncs, stem string) {
		reg(&r.Retain, "ipl"+stem+"Retain")
		reg(&r.Release, "ipl"+stem+"Release")
	}

	reg(&lib.ContextCreate, "iplContextCreate")
	refs(&lib.Context, "Context")

	reg(&lib.HRTFCreate, "iplHRTFCreate")
	refs(&lib.HRTF, "HRTF")

	reg(&lib.EmbreeDeviceCreate, "iplEmbreeDeviceCreate")
	refs(&lib.EmbreeDevice, "EmbreeDevice")

	reg(&lib.OpenCLDeviceListCreate, "iplOpenCLDeviceListCreate")
	refs(&lib.OpenCLDeviceList, "OpenCLDeviceList")
	reg(&lib.OpenCLDeviceListGetNumDevices, "iplOpenCLDeviceListGetNumDevices")
	reg(&lib.OpenCLDeviceListGetDeviceDesc, "iplOpenCLDeviceListGetDeviceDesc")

	reg(&lib.OpenCLDeviceCreate, "iplOpenCLDeviceCreate")
	refs(&lib.OpenCLDevice, "OpenCLDevice")

	reg(&lib.RadeonRaysDeviceCreate, "iplRadeonRaysDeviceCreate")
	refs(&lib.RadeonRaysDevice, "RadeonRaysDevice")

	reg(&lib.TrueAudioNextDeviceCreate, "iplTrueAudioNextDeviceCreate")
	refs(&lib.TrueAudioNextDevice, "TrueAudioNextDevice")

	reg(&lib.SerializedObjectCreate, "iplSerializedObjectCreate")
	refs(&lib.SerializedObject, "SerializedObject")
	reg(&lib.SerializedObjectGetSize, "iplSerializedObjectGetSize")
	reg(&lib.SerializedObjectGetData, "iplSerializedObjectGetData")

	reg(&lib.ReflectionsBakerBake, "iplReflectionsBakerBake")
	reg(&lib.ReflectionsBakerCancelBake, "iplReflectionsBakerCancelBake")
	reg(&lib.PathBakerBake, "iplPathBakerBake")
	reg(&lib.PathBakerCancelBake, "iplPathBakerCancelBake")

	for k := range NumEffectKinds {
		fx := &lib.Effects[k]
		stem := EffectKind(k).String() + "Effect"
		reg(&fx.Create, "ipl"+stem+"Create")
		refs(&fx.RefFuncs, stem)
		reg(&fx.Reset, "ipl"+stem+"Reset")
		reg(&fx.Apply, "ipl"+stem+"Apply")
		reg(&fx.GetTail, "ipl"+stem+"GetTail")
		reg(&fx.GetTailSize, "ipl"+stem+"GetTailSize")
	}
}
