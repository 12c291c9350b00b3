//go:build !darwin && !linux

package native

import (
	"fmt"
	"runtime"
)

const EnvLibraryPath = "NIMBUS_PHONON_LIB"

// Load is unavailable without purego's dynamic loader.
func Load(path string) (*Library, error) {
	return nil, fmt.Errorf("failed to load phonon library: dynamic loading is not supported on %s", runtime.GOOS)
}
