// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrPlayerClosed is returned by WriteFrame once Close has been called.
var ErrPlayerClosed = errors.New("player is closed")

// PlayerSettings configure the output stream.
type PlayerSettings struct {
	Device     *portaudio.DeviceInfo
	SampleRate int
	Channels   int
	FrameSize  int
	LowLatency bool
	// Queue is the number of rendered frames buffered ahead of the stream.
	// Zero means 8.
	Queue int
}

// Player is a sink playing rendered frames through PortAudio. WriteFrame
// blocks while the queue is full, pacing the renderer to real time.
type Player struct {
	settings PlayerSettings
	stream   *portaudio.Stream

	frames    chan []float32 // rendered, waiting for the stream
	free      chan []float32 // recycled frame buffers
	done      chan struct{}
	closeOnce sync.Once
	underruns atomic.Uint64
	played    atomic.Uint64
}

func newPlayer(s PlayerSettings) *Player {
	if s.Queue <= 0 {
		s.Queue = 8
	}
	p := &Player{
		settings: s,
		frames:   make(chan []float32, s.Queue),
		free:     make(chan []float32, s.Queue),
		done:     make(chan struct{}),
	}
	for range s.Queue {
		p.free <- make([]float32, s.Channels*s.FrameSize)
	}
	return p
}

// NewPlayer opens and starts an output stream on s.Device.
func NewPlayer(s PlayerSettings) (*Player, error) {
	if s.Device == nil {
		return nil, fmt.Errorf("player needs an output device")
	}
	if s.Channels > s.Device.MaxOutputChannels {
		return nil, fmt.Errorf("device %q has %d output channels, need %d",
			s.Device.Name, s.Device.MaxOutputChannels, s.Channels)
	}
	p := newPlayer(s)

	latency := s.Device.DefaultHighOutputLatency
	if s.LowLatency {
		latency = s.Device.DefaultLowOutputLatency
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   s.Device,
			Channels: s.Channels,
			Latency:  latency,
		},
		FramesPerBuffer: s.FrameSize,
		SampleRate:      float64(s.SampleRate),
	}
	stream, err := portaudio.OpenStream(params, p.processOutputStream)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	p.stream = stream
	renderLog.Infof("playing on %q (%d ch, %v latency)", s.Device.Name, s.Channels, latency)
	return p, nil
}

// processOutputStream runs on the PortAudio thread. It never blocks or
// allocates.
func (p *Player) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.fill(out)
}

func (p *Player) fill(out []float32) {
	select {
	case buf := <-p.frames:
		n := copy(out, buf)
		clear(out[n:])
		p.free <- buf
		p.played.Add(1)
	default:
		clear(out)
		p.underruns.Add(1)
		playbackUnderruns.Inc()
	}
}

// WriteFrame queues one frame for playback. A writer blocked on a full
// queue returns ErrPlayerClosed when the player is closed.
func (p *Player) WriteFrame(samples []float32, channels int) error {
	if channels != p.settings.Channels {
		return fmt.Errorf("player expects %d channels, got %d", p.settings.Channels, channels)
	}
	select {
	case <-p.done:
		return ErrPlayerClosed
	default:
	}
	var buf []float32
	select {
	case buf = <-p.free:
	case <-p.done:
		return ErrPlayerClosed
	}
	n := copy(buf, samples)
	clear(buf[n:])
	p.frames <- buf
	return nil
}

// Underruns returns the number of callbacks that played silence.
func (p *Player) Underruns() uint64 { return p.underruns.Load() }

// Played returns the number of frames handed to the device.
func (p *Player) Played() uint64 { return p.played.Load() }

// Drain waits until every queued frame has been played or ctx is done.
func (p *Player) Drain(ctx context.Context) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for len(p.frames) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Close releases blocked writers, waits for the queue to play out, giving
// up after the queue's duration plus a second, and stops the stream.
func (p *Player) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	if p.stream == nil {
		return nil
	}
	frameTime := time.Duration(p.settings.FrameSize) * time.Second / time.Duration(p.settings.SampleRate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second+frameTime*time.Duration(cap(p.frames)))
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		renderLog.Warnf("closing player with %d frames unplayed", len(p.frames))
	}

	if err := p.stream.Stop(); err != nil {
		return err
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	p.stream = nil
	return nil
}
