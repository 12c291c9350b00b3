package main

import (
	"os"

	"nimbus/cmd"
	"nimbus/internal/log"
	"nimbus/pkg/build"
)

// main wires build information into the command line and exits non-zero on
// the first error a command returns.
func main() {
	// Development builds run without ldflags and keep the default build info.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	if err := cmd.Execute(os.Args[1:], os.Stdout); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
