// SPDX-License-Identifier: MIT
/*
Package audio renders source buffers through a spatial effect and delivers
the result to sinks: WAV files, a PortAudio output stream or a monitor.

Rendering runs frame by frame on the calling goroutine:
  - the source is walked in frame windows, the last one zero-padded
  - every window is processed by the effect
  - once the source is exhausted the effect tail is drained until complete
  - each output frame is interleaved once and handed to every sink

Sinks must not retain the interleaved slice past WriteFrame.
*/
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nimbus/internal/audiobuf"
	"nimbus/internal/effect"
	"nimbus/internal/log"
	"nimbus/pkg/bitint"
)

var renderLog = log.Named("render")

// Sink consumes rendered frames in interleaved order.
type Sink interface {
	WriteFrame(samples []float32, channels int) error
	Close() error
}

// Report summarises one render.
type Report struct {
	Session    uuid.UUID
	Frames     int // frames rendered from the source
	TailFrames int // frames drained from the effect tail
	Gated      int // frames held back by gated sinks
	Padding    int // zero samples appended to the last source frame
	Elapsed    time.Duration
}

// Samples returns the number of samples per channel delivered to sinks.
func (r Report) Samples(frameSize int) int {
	return (r.Frames + r.TailFrames) * frameSize
}

// Renderer drives one effect. It reuses its buffers across renders and is
// not safe for concurrent use.
type Renderer struct {
	processor effect.Processor
	frameSize int

	in          *audiobuf.Buffer
	out         *audiobuf.Buffer
	interleaved []float32
}

// NewRenderer returns a renderer for p.
func NewRenderer(p effect.Processor) *Renderer {
	frame := p.FrameSize()
	outCh := p.OutputChannels()
	return &Renderer{
		processor:   p,
		frameSize:   frame,
		out:         audiobuf.WithShape(outCh, frame),
		interleaved: make([]float32, outCh*frame),
	}
}

// FrameSize returns the samples per channel of every frame.
func (r *Renderer) FrameSize() int { return r.frameSize }

// OutputChannels returns the channel count the sinks receive.
func (r *Renderer) OutputChannels() int { return r.out.NumChannels() }

// Render processes src and then drains the effect tail. It stops between
// frames when ctx is done and returns the partial report with ctx's error.
func (r *Renderer) Render(ctx context.Context, src *audiobuf.Buffer, sinks ...Sink) (Report, error) {
	return r.RenderSession(ctx, uuid.New(), src, sinks...)
}

// RenderSession is Render with a caller-chosen session id, for sinks that
// tag their output with it.
func (r *Renderer) RenderSession(ctx context.Context, session uuid.UUID, src *audiobuf.Buffer, sinks ...Sink) (rep Report, err error) {
	rep.Session = session
	start := time.Now()
	defer func() { rep.Elapsed = time.Since(start) }()

	if req := r.processor.InputChannels(); !req.Allows(src.NumChannels()) {
		return rep, &effect.ChannelError{Expected: req, Actual: src.NumChannels()}
	}
	if r.in == nil || r.in.NumChannels() != src.NumChannels() {
		r.in = audiobuf.WithShape(src.NumChannels(), r.frameSize)
	}
	if r.processor.State() != effect.Idle {
		r.processor.Reset()
	}

	whole := src.Frames(r.frameSize)
	total := bitint.FrameCount(src.NumSamples(), r.frameSize)
	renderLog.Debugf("session %s: %d frames of %d samples, %d channels in, %d out",
		rep.Session, total, r.frameSize, src.NumChannels(), r.out.NumChannels())

	state := effect.TailComplete
	for i := range total {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("render canceled after %d frames: %w", rep.Frames, err)
		}
		if err := r.load(src, i, i < whole); err != nil {
			return rep, err
		}
		if state, err = r.processor.Process(r.in, r.out); err != nil {
			renderLog.Errorf("session %s: frame %d: %v", rep.Session, i, err)
			return rep, fmt.Errorf("failed to process frame %d: %w", i, err)
		}
		if err := r.emit(sinks); err != nil {
			return rep, err
		}
		rep.Frames++
		renderFrames.WithLabelValues("source").Inc()
	}
	rep.Padding = bitint.AlignUp(src.NumSamples(), r.frameSize) - src.NumSamples()

	// A tail of N samples needs at most ceil(N/frame) more frames; one extra
	// covers a tail that straddles the boundary.
	limit := bitint.FrameCount(r.processor.TailSize(), r.frameSize) + 1
	for state == effect.TailRemaining {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("render canceled while draining the tail: %w", err)
		}
		if rep.TailFrames >= limit {
			return rep, fmt.Errorf("effect tail did not complete within %d frames", limit)
		}
		if state, err = r.processor.DrainTail(r.out); err != nil {
			return rep, fmt.Errorf("failed to drain tail: %w", err)
		}
		if err := r.emit(sinks); err != nil {
			return rep, err
		}
		rep.TailFrames++
		renderFrames.WithLabelValues("tail").Inc()
	}

	for _, s := range sinks {
		if g, ok := s.(interface{ Gated() int }); ok {
			rep.Gated += g.Gated()
		}
	}
	renderLog.Infof("session %s: rendered %d frames plus %d tail frames", rep.Session, rep.Frames, rep.TailFrames)
	return rep, nil
}

// load copies frame i of src into the input buffer. Whole frames come
// through a borrowed window; the trailing partial frame is zero-padded.
func (r *Renderer) load(src *audiobuf.Buffer, i int, whole bool) error {
	if whole {
		v, err := src.BorrowFrame(audiobuf.FrameSettings{FrameSize: r.frameSize, FrameIndex: i})
		if err != nil {
			return fmt.Errorf("failed to borrow frame %d: %w", i, err)
		}
		for c := range v.NumChannels() {
			copy(r.in.Channel(c), v.Channel(c))
		}
		v.Release()
		return nil
	}
	if err := r.in.Zero(); err != nil {
		return err
	}
	offset := i * r.frameSize
	for c := range src.NumChannels() {
		copy(r.in.Channel(c), src.Channel(c)[offset:])
	}
	return nil
}

func (r *Renderer) emit(sinks []Sink) error {
	if len(sinks) == 0 {
		return nil
	}
	if err := r.out.Interleave(r.interleaved); err != nil {
		return err
	}
	for _, s := range sinks {
		if err := s.WriteFrame(r.interleaved, r.out.NumChannels()); err != nil {
			return fmt.Errorf("failed to write frame to %T: %w", s, err)
		}
	}
	return nil
}
