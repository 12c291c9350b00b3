// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nimbus/internal/audio"
	"nimbus/internal/config"
	"nimbus/internal/log"
	"nimbus/internal/monitor"
	"nimbus/internal/native"
	"nimbus/internal/source"
	"nimbus/internal/spatial"
	"nimbus/internal/transport"
	"nimbus/internal/transport/udp"
)

var cliLog = log.Named("nimbus")

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// render runs one render of cfg.Source with every configured sink.
func render(ctx context.Context, cfg *config.Config, stdout io.Writer) (err error) {
	if cfg.Source == "" {
		return fmt.Errorf("no source file given")
	}
	src, err := source.Open(cfg.Source)
	if err != nil {
		return err
	}
	if src.SampleRate != cfg.Audio.SampleRate {
		cliLog.Warnf("source is %d Hz, rendering at %d Hz without resampling", src.SampleRate, cfg.Audio.SampleRate)
	}

	var cleanup closers
	defer func() { err = errors.Join(err, cleanup.close()) }()

	if cfg.Monitor.MetricsAddress != "" {
		stop, err := serveMetrics(cfg.Monitor.MetricsAddress)
		if err != nil {
			return err
		}
		cleanup.add(stop)
	}

	rt, err := openContext(cfg.Library)
	if err != nil {
		return err
	}
	cleanup.add(func() error { rt.Release(); return nil })

	as := spatial.AudioSettings{SamplingRate: cfg.Audio.SampleRate, FrameSize: cfg.Audio.FrameSize}
	hrtfSettings := spatial.HRTFSettings{Volume: cfg.HRTF.Volume, SOFAFile: cfg.HRTF.SOFAFile}
	if cfg.HRTF.Normalization {
		hrtfSettings.Normalization = native.HRTFNormRMS
	}
	hrtf, err := spatial.NewHRTF(rt, as, hrtfSettings)
	if err != nil {
		return err
	}
	cleanup.add(func() error { hrtf.Release(); return nil })

	proc, input, err := buildProcessor(rt, as, hrtf, cfg.Effect, src.Buffer)
	if err != nil {
		return err
	}
	cleanup.add(func() error { proc.Release(); return nil })

	r := audio.NewRenderer(proc)
	session := uuid.New()
	sinks, err := openSinks(cfg, r, session, &cleanup)
	if err != nil {
		return err
	}

	rep, err := r.RenderSession(ctx, session, input, sinks...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "session %s: %d frames + %d tail frames of %d samples (%d padded, %d gated) in %s\n",
		rep.Session, rep.Frames, rep.TailFrames, r.FrameSize(), rep.Padding, rep.Gated, rep.Elapsed.Round(time.Microsecond))
	if cfg.Output.File != "" {
		fmt.Fprintf(stdout, "recording saved to: %s\n", cfg.Output.File)
	}
	return nil
}

// openSinks wires the recorder, player and monitor the configuration asks
// for. Every opened sink is registered with cleanup.
func openSinks(cfg *config.Config, r *audio.Renderer, session uuid.UUID, cleanup *closers) ([]audio.Sink, error) {
	var sinks []audio.Sink
	channels := r.OutputChannels()

	if cfg.Output.File != "" {
		rec, err := audio.NewRecorder(cfg.Audio.SampleRate, channels, cfg.Output.BitDepth)
		if err != nil {
			return nil, err
		}
		if err := rec.StartRecording(cfg.Output.File); err != nil {
			return nil, err
		}
		cleanup.add(rec.Close)
		sinks = append(sinks, rec)
	}

	if cfg.Audio.Playback {
		if err := audio.Initialize(); err != nil {
			return nil, err
		}
		cleanup.add(audio.Terminate)
		dev, err := audio.OutputDevice(cfg.Audio.OutputDevice)
		if err != nil {
			return nil, err
		}
		p, err := audio.NewPlayer(audio.PlayerSettings{
			Device:     dev,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   channels,
			FrameSize:  r.FrameSize(),
			LowLatency: cfg.Audio.LowLatency,
		})
		if err != nil {
			return nil, err
		}
		cleanup.add(p.Close)
		sinks = append(sinks, p)
	}

	m := cfg.Monitor
	if m.WebSocketAddress == "" && m.UDPTargetAddress == "" {
		return sinks, nil
	}

	var tr transport.Multi
	if m.WebSocketAddress != "" {
		ws, err := transport.NewWebSocketTransport(m.WebSocketAddress)
		if err != nil {
			return nil, err
		}
		cleanup.add(ws.Close)
		tr = append(tr, ws)
	}
	if log.GetLevel() == log.LevelDebug {
		tr = append(tr, transport.NewLoggingTransport())
	}

	opts := []monitor.MeterOption{monitor.WithSession(session.String())}
	var spectrum *monitor.Spectrum
	if m.Spectrum > 0 {
		var err error
		if spectrum, err = monitor.NewSpectrum(m.Spectrum, float64(cfg.Audio.SampleRate)); err != nil {
			return nil, err
		}
		opts = append(opts, monitor.WithSpectrum(spectrum))
	}
	meter := monitor.NewMeter(tr, monitor.NewGate(m.GateThreshold), opts...)
	cleanup.add(meter.Close)
	sinks = append(sinks, meter)

	if m.UDPTargetAddress != "" {
		sender, err := udp.NewSender(m.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		cleanup.add(sender.Close)
		var snap udp.Source = meter
		if spectrum != nil {
			snap = spectrum
		}
		pub, err := udp.NewPublisher(m.UDPInterval, sender, snap)
		if err != nil {
			return nil, err
		}
		pub.Start()
		cleanup.add(pub.Close)
	}
	return sinks, nil
}

// serveMetrics exposes the handle and render metrics on addr/metrics.
func serveMetrics(addr string) (func() error, error) {
	reg := prometheus.NewRegistry()
	if err := spatial.RegisterMetrics(reg); err != nil {
		return nil, err
	}
	if err := audio.RegisterMetrics(reg); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cliLog.Errorf("metrics server: %v", err)
		}
	}()
	cliLog.Infof("serving metrics on %s/metrics", addr)

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}
