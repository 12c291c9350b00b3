package spatial

import (
	"fmt"
)

// Version is a runtime API version.
type Version struct {
	Major, Minor, Patch uint32
}

// APIVersion is the runtime version the native bindings were written for.
var APIVersion = Version{Major: 4, Minor: 6, Patch: 1}

// Packed returns the version in the runtime's major<<16 | minor<<8 | patch form.
func (v Version) Packed() uint32 {
	return v.Major<<16 | v.Minor<<8 | v.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
