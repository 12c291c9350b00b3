// Package cmd implements the nimbus command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nimbus/internal/audio"
	"nimbus/internal/config"
	"nimbus/internal/log"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
	"nimbus/pkg/bitint"
	"nimbus/pkg/build"
)

type options struct {
	configPath string
	backend    string
	effect     string
	output     string
	frameSize  int
	playback   bool
	verbose    bool
}

// Execute runs the command line with args and writes command output to out.
func Execute(args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [flags] [source]",
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Source = args[0]
			}
			if cfg.Source == "" {
				return cmd.Help()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return render(ctx, cfg, out)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetContext(context.Background())

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVar(&opts.backend, "backend", config.DefaultBackend,
		"Runtime backend ("+config.BackendNative+" or "+config.BackendEmulator+")")
	flags.StringVarP(&opts.effect, "effect", "e", config.DefaultEffect, "Effect to render through")
	flags.StringVarP(&opts.output, "output", "o", "", "Write the rendered audio to this WAV file")
	flags.BoolVarP(&opts.playback, "play", "p", false, "Play the rendered audio on the output device")
	flags.IntVar(&opts.frameSize, "frame-size", config.DefaultFrameSize,
		"Samples per channel per frame, rounded up to a power of two")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio output devices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(cmd, opts); err != nil {
					return err
				}
				if err := audio.Initialize(); err != nil {
					return err
				}
				defer audio.Terminate()
				return audio.ListDevices(out)
			},
		},
		&cobra.Command{
			Use:   "devices",
			Short: "List the OpenCL devices the runtime can use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				return listOpenCLDevices(cfg.Library, out)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show build and runtime versions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				return printVersion(cfg.Library, out)
			},
		},
	)
	return rootCmd
}

// loadConfig reads the configuration file and applies the flags the user
// actually set on top of it.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Library.Backend = opts.backend
	}
	if flags.Changed("effect") {
		cfg.Effect.Kind = opts.effect
	}
	if flags.Changed("output") {
		cfg.Output.File = opts.output
	}
	if flags.Changed("play") {
		cfg.Audio.Playback = opts.playback
	}
	if flags.Changed("frame-size") {
		cfg.Audio.FrameSize = bitint.NextPowerOfTwo(opts.frameSize)
		if cfg.Audio.FrameSize != opts.frameSize {
			cliLog.Infof("frame size %d rounded up to %d", opts.frameSize, cfg.Audio.FrameSize)
		}
	}
	if opts.verbose {
		cfg.LogLevel = log.LevelDebug.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	return cfg, nil
}

var clDeviceTypes = map[native.OpenCLDeviceType]string{
	native.OpenCLDeviceAny: "any",
	native.OpenCLDeviceCPU: "cpu",
	native.OpenCLDeviceGPU: "gpu",
}

func listOpenCLDevices(cfg config.LibraryConfig, out io.Writer) error {
	rt, err := openContext(cfg)
	if err != nil {
		return err
	}
	defer rt.Release()

	list, err := spatial.NewOpenCLDeviceList(rt, spatial.OpenCLDeviceSettings{Type: native.OpenCLDeviceAny})
	if err != nil {
		return err
	}
	defer list.Release()

	descs := list.Descriptors()
	if len(descs) == 0 {
		fmt.Fprintln(out, "No OpenCL devices found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tDEVICE\tVENDOR\tPLATFORM\tTYPE\tSCORE")
	for i, d := range descs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\n", i, d.DeviceName, d.DeviceVendor, d.PlatformName, clDeviceTypes[d.Type], d.PerfScore)
	}
	return w.Flush()
}

func printVersion(cfg config.LibraryConfig, out io.Writer) error {
	fmt.Fprintln(out, build.GetBuildFlags())
	fmt.Fprintf(out, "bindings: %s\n", spatial.APIVersion)
	// The runtime exports no version query; a context it accepts is the check.
	lib, err := openLibrary(cfg)
	if err == nil {
		var rt *spatial.Context
		if rt, err = spatial.NewContext(lib, spatial.ContextSettings{Quiet: true}); err == nil {
			rt.Release()
		}
	}
	if err != nil {
		fmt.Fprintf(out, "runtime: unavailable (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "runtime: %s accepts API %s (%s)\n", lib.Name, spatial.APIVersion, cfg.Backend)
	return nil
}
