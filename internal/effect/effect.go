// SPDX-License-Identifier: MIT

// Package effect drives the native audio effects through a checked state
// machine. Every effect starts Idle, moves to TailDraining when an apply
// leaves samples in its internal buffers, and returns to Idle once the tail
// has been drained or the effect is reset.
//
// Effects are not safe for concurrent use.
package effect

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"nimbus/internal/audiobuf"
	"nimbus/internal/native"
	"nimbus/internal/spatial"
)

// State is the lifecycle state of an effect instance.
type State int

const (
	Idle State = iota
	TailDraining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TailDraining:
		return "tail draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TailState is the tail signal of an apply or drain call.
type TailState int

const (
	TailRemaining TailState = iota
	TailComplete
)

func (t TailState) String() string {
	if t == TailRemaining {
		return "tail remaining"
	}
	return "tail complete"
}

// ErrNotDraining is returned by DrainTail on an Idle effect.
var ErrNotDraining = errors.New("effect has no tail to drain")

// Vector3 is a direction or position in the runtime's coordinate system:
// +X right, +Y up, -Z ahead.
type Vector3 = native.Vector3

// Orientation is a listener or sound-field basis. The zero value means
// Identity.
type Orientation = native.CoordinateSpace3

// Identity is the unrotated basis.
var Identity = Orientation{
	Right: Vector3{X: 1},
	Up:    Vector3{Y: 1},
	Ahead: Vector3{Z: -1},
}

func orientationOrIdentity(o Orientation) Orientation {
	if o == (Orientation{}) {
		return Identity
	}
	return o
}

// ChannelRequirement bounds the channel count of a buffer.
type ChannelRequirement struct {
	min, max int // max 0 means unbounded
}

// Exactly requires n channels.
func Exactly(n int) ChannelRequirement { return ChannelRequirement{min: n, max: n} }

// AtLeast requires n or more channels.
func AtLeast(n int) ChannelRequirement { return ChannelRequirement{min: n} }

// Between requires lo to hi channels inclusive.
func Between(lo, hi int) ChannelRequirement { return ChannelRequirement{min: lo, max: hi} }

// Allows reports whether n channels satisfy r.
func (r ChannelRequirement) Allows(n int) bool {
	return n >= r.min && (r.max == 0 || n <= r.max)
}

// Min returns the smallest allowed channel count.
func (r ChannelRequirement) Min() int { return r.min }

func (r ChannelRequirement) String() string {
	switch {
	case r.min == r.max:
		return fmt.Sprintf("exactly %d", r.min)
	case r.max == 0:
		return fmt.Sprintf("at least %d", r.min)
	default:
		return fmt.Sprintf("between %d and %d", r.min, r.max)
	}
}

// ChannelError reports a buffer whose channel count violates an effect's
// requirement. It matches spatial.ErrChannelContract.
type ChannelError struct {
	Output   bool
	Expected ChannelRequirement
	Actual   int
}

func (e *ChannelError) Error() string {
	side := "input"
	if e.Output {
		side = "output"
	}
	return fmt.Sprintf("invalid number of %s channels: expected %s, got %d", side, e.Expected, e.Actual)
}

func (e *ChannelError) Is(target error) bool {
	return errors.Is(spatial.ErrChannelContract, target)
}

// Effect is the common surface of every effect type with params P.
type Effect[P any] interface {
	Apply(params P, in, out *audiobuf.Buffer) (TailState, error)
	DrainTail(out *audiobuf.Buffer) (TailState, error)
	Requirements(params P) (in, out ChannelRequirement)
	FrameSize() int
	TailSize() int
	State() State
	Reset()
	Release()
}

// Processor is an effect with its parameters bound, as used by the renderer.
type Processor interface {
	Process(in, out *audiobuf.Buffer) (TailState, error)
	DrainTail(out *audiobuf.Buffer) (TailState, error)
	InputChannels() ChannelRequirement
	OutputChannels() int
	FrameSize() int
	TailSize() int
	State() State
	Reset()
	Release()
}

var (
	_ Effect[BinauralParams]           = (*Binaural)(nil)
	_ Effect[PanningParams]            = (*Panning)(nil)
	_ Effect[VirtualSurroundParams]    = (*VirtualSurround)(nil)
	_ Effect[DirectParams]             = (*Direct)(nil)
	_ Effect[AmbisonicsEncodeParams]   = (*AmbisonicsEncode)(nil)
	_ Effect[AmbisonicsDecodeParams]   = (*AmbisonicsDecode)(nil)
	_ Effect[AmbisonicsPanningParams]  = (*AmbisonicsPanning)(nil)
	_ Effect[AmbisonicsBinauralParams] = (*AmbisonicsBinaural)(nil)
	_ Effect[AmbisonicsRotationParams] = (*AmbisonicsRotation)(nil)

	_ Processor = (*Bound[BinauralParams])(nil)
)

// Bound pairs an effect with the params used on every Process call. Params
// may be changed between calls.
type Bound[P any] struct {
	Effect[P]
	Params P
}

// Bind returns a Processor applying e with params.
func Bind[P any](e Effect[P], params P) *Bound[P] {
	return &Bound[P]{Effect: e, Params: params}
}

func (b *Bound[P]) Process(in, out *audiobuf.Buffer) (TailState, error) {
	return b.Apply(b.Params, in, out)
}

func (b *Bound[P]) InputChannels() ChannelRequirement {
	in, _ := b.Requirements(b.Params)
	return in
}

func (b *Bound[P]) OutputChannels() int {
	_, out := b.Requirements(b.Params)
	return out.Min()
}

var objectKinds = [native.NumEffectKinds]string{
	native.EffectBinaural:           "binaural_effect",
	native.EffectPanning:            "panning_effect",
	native.EffectVirtualSurround:    "virtual_surround_effect",
	native.EffectDirect:             "direct_effect",
	native.EffectAmbisonicsEncode:   "ambisonics_encode_effect",
	native.EffectAmbisonicsDecode:   "ambisonics_decode_effect",
	native.EffectAmbisonicsPanning:  "ambisonics_panning_effect",
	native.EffectAmbisonicsBinaural: "ambisonics_binaural_effect",
	native.EffectAmbisonicsRotation: "ambisonics_rotation_effect",
}

// core holds the native instance and enforces the apply/drain protocol.
type core struct {
	kind  native.EffectKind
	fns   native.EffectFuncs
	h     *spatial.Handle
	frame int
	state State
}

func newCore(ctx *spatial.Context, kind native.EffectKind, audio spatial.AudioSettings, settings unsafe.Pointer, pins ...any) (*core, error) {
	if err := audio.Validate(); err != nil {
		return nil, err
	}
	fns := ctx.Library().Effects[kind]
	na := audio.Native()

	var pin runtime.Pinner
	defer pin.Unpin()
	for _, p := range pins {
		pin.Pin(p)
	}
	h, err := spatial.Create(objectKinds[kind], fns.RefFuncs, func(out *native.Handle) native.Status {
		return fns.Create(ctx.Raw(), &na, settings, out)
	})
	if err != nil {
		return nil, err
	}
	return &core{kind: kind, fns: fns, h: h, frame: audio.FrameSize}, nil
}

func (c *core) op() string {
	return "apply " + objectKinds[c.kind]
}

func (c *core) checkBuffer(buf *audiobuf.Buffer, req ChannelRequirement, output bool) error {
	if n := buf.NumChannels(); !req.Allows(n) {
		return &ChannelError{Output: output, Expected: req, Actual: n}
	}
	if n := buf.NumSamples(); n != c.frame {
		return spatial.Errorf(spatial.KindShapeMismatch, c.op(), "buffer has %d samples, frame size is %d", n, c.frame)
	}
	return nil
}

// apply validates both buffers, borrows them and calls the native apply.
// pins are pointers inside params that must stay put during the call.
func (c *core) apply(params unsafe.Pointer, inReq, outReq ChannelRequirement, in, out *audiobuf.Buffer, pins ...any) (TailState, error) {
	if err := c.checkBuffer(in, inReq, false); err != nil {
		return TailComplete, err
	}
	if err := c.checkBuffer(out, outReq, true); err != nil {
		return TailComplete, err
	}
	iv, err := in.Borrow()
	if err != nil {
		return TailComplete, err
	}
	defer iv.Release()
	ov, err := out.Borrow()
	if err != nil {
		return TailComplete, err
	}
	defer ov.Release()

	var pin runtime.Pinner
	defer pin.Unpin()
	for _, p := range pins {
		pin.Pin(p)
	}
	return c.transition(c.fns.Apply(c.h.Raw(), params, iv.Native(), ov.Native())), nil
}

func (c *core) drain(outReq ChannelRequirement, out *audiobuf.Buffer) (TailState, error) {
	if c.state != TailDraining {
		return TailComplete, ErrNotDraining
	}
	if err := c.checkBuffer(out, outReq, true); err != nil {
		return TailRemaining, err
	}
	ov, err := out.Borrow()
	if err != nil {
		return TailRemaining, err
	}
	defer ov.Release()
	return c.transition(c.fns.GetTail(c.h.Raw(), ov.Native())), nil
}

func (c *core) transition(s native.EffectState) TailState {
	if s == native.EffectTailRemaining {
		c.state = TailDraining
		return TailRemaining
	}
	c.state = Idle
	return TailComplete
}

// FrameSize returns the sample count every buffer must have.
func (c *core) FrameSize() int { return c.frame }

// TailSize returns the number of tail samples the effect may still emit.
func (c *core) TailSize() int { return int(c.fns.GetTailSize(c.h.Raw())) }

func (c *core) State() State { return c.state }

// Reset clears the internal buffers and returns the effect to Idle.
func (c *core) Reset() {
	c.fns.Reset(c.h.Raw())
	c.state = Idle
}

// Release drops the native instance.
func (c *core) Release() { c.h.Release() }

func ambisonicChannels(order int) int {
	return (order + 1) * (order + 1)
}

func checkOrder(op string, order, maxOrder int) error {
	if order < 0 || order > maxOrder {
		return spatial.Errorf(spatial.KindOutOfBounds, op, "ambisonics order %d outside [0, %d]", order, maxOrder)
	}
	return nil
}

func rawOrZero(h *spatial.HRTF) native.Handle {
	if h == nil {
		return 0
	}
	return h.Raw()
}
