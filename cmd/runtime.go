package cmd

import (
	"fmt"

	"nimbus/internal/config"
	"nimbus/internal/native"
	"nimbus/internal/native/emulator"
	"nimbus/internal/spatial"
)

// openLibrary returns the native runtime or the pure-Go emulator.
func openLibrary(cfg config.LibraryConfig) (*native.Library, error) {
	switch cfg.Backend {
	case config.BackendEmulator:
		return emulator.New().Library(), nil
	case config.BackendNative:
		lib, err := native.Load(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load the native runtime (use --backend emulator to run without it): %w", err)
		}
		return lib, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openContext(cfg config.LibraryConfig) (*spatial.Context, error) {
	lib, err := openLibrary(cfg)
	if err != nil {
		return nil, err
	}
	return spatial.NewContext(lib, spatial.ContextSettings{Validation: cfg.Validation})
}
