package emulator

import (
	"fmt"
	"math"
	"unsafe"

	"nimbus/internal/native"
)

// hrtfTail is the emulated HRIR length in samples. Every HRTF-based effect
// carries a delay line of this length and therefore a tail.
const hrtfTail = 96

const maxITDSeconds = 0.00066

type effectState struct {
	kind      native.EffectKind
	rate      int
	frame     int
	delay     int
	hrtf      native.Handle
	layout    []native.Vector3
	maxOrder  int
	numInputs int

	hist  [][]float32
	line  []float32
	mixed []float32
	gains [][]float32
}

func ambisonicChannels(order int) int {
	return (order + 1) * (order + 1)
}

func (e *Emulator) effectFuncs(kind native.EffectKind) native.EffectFuncs {
	table := EffectKind(kind)
	return native.EffectFuncs{
		Create: func(ctx native.Handle, audio *native.AudioSettings, settings unsafe.Pointer, out *native.Handle) native.Status {
			if !e.liveContext(ctx) || !validAudio(audio) || settings == nil {
				return native.StatusFailure
			}
			st, ok := e.newEffect(kind, audio, settings)
			if !ok {
				return native.StatusFailure
			}
			return e.create(table, out, func() (any, native.Status) {
				return st, native.StatusSuccess
			})
		},
		RefFuncs: e.refs(table),
		Reset: func(h native.Handle) {
			st := e.mustLookup(h, table).(*effectState)
			for _, line := range st.hist {
				clear(line)
			}
		},
		Apply: func(h native.Handle, params unsafe.Pointer, in, out *native.AudioBuffer) native.EffectState {
			st := e.mustLookup(h, table).(*effectState)
			inputs, outputs := channels(in), channels(out)
			st.checkFrame(in, out)
			st.process(inputs, outputs, e.gains(st, params, len(inputs), len(outputs)))
			return st.tailState()
		},
		GetTail: func(h native.Handle, out *native.AudioBuffer) native.EffectState {
			st := e.mustLookup(h, table).(*effectState)
			st.checkFrame(nil, out)
			st.process(nil, channels(out), nil)
			return st.tailState()
		},
		GetTailSize: func(h native.Handle) int32 {
			return int32(e.mustLookup(h, table).(*effectState).delay)
		},
	}
}

func (e *Emulator) liveHRTF(h native.Handle) bool {
	_, ok := e.lookup(h, KindHRTF)
	return ok
}

func (e *Emulator) newEffect(kind native.EffectKind, audio *native.AudioSettings, settings unsafe.Pointer) (*effectState, bool) {
	st := &effectState{kind: kind, rate: int(audio.SamplingRate), frame: int(audio.FrameSize)}
	var outputs int

	switch kind {
	case native.EffectBinaural:
		s := (*native.BinauralEffectSettings)(settings)
		if !e.liveHRTF(s.HRTF) {
			return nil, false
		}
		st.hrtf, st.delay, st.numInputs, outputs = s.HRTF, hrtfTail, 2, 2
	case native.EffectPanning:
		s := (*native.PanningEffectSettings)(settings)
		layout, ok := speakers(s.SpeakerLayout)
		if !ok {
			return nil, false
		}
		st.layout, st.numInputs, outputs = layout, 1, len(layout)
	case native.EffectVirtualSurround:
		s := (*native.VirtualSurroundEffectSettings)(settings)
		layout, ok := speakers(s.SpeakerLayout)
		if !ok || !e.liveHRTF(s.HRTF) {
			return nil, false
		}
		st.layout, st.hrtf, st.delay, st.numInputs, outputs = layout, s.HRTF, hrtfTail, len(layout), 2
	case native.EffectDirect:
		s := (*native.DirectEffectSettings)(settings)
		if s.NumChannels <= 0 {
			return nil, false
		}
		st.numInputs, outputs = int(s.NumChannels), int(s.NumChannels)
	case native.EffectAmbisonicsEncode:
		s := (*native.AmbisonicsEncodeEffectSettings)(settings)
		if s.MaxOrder < 0 {
			return nil, false
		}
		st.maxOrder, st.numInputs, outputs = int(s.MaxOrder), 1, ambisonicChannels(int(s.MaxOrder))
	case native.EffectAmbisonicsDecode:
		s := (*native.AmbisonicsDecodeEffectSettings)(settings)
		layout, ok := speakers(s.SpeakerLayout)
		if !ok || s.MaxOrder < 0 || !e.liveHRTF(s.HRTF) {
			return nil, false
		}
		st.layout, st.hrtf, st.maxOrder, st.delay = layout, s.HRTF, int(s.MaxOrder), hrtfTail
		st.numInputs, outputs = ambisonicChannels(int(s.MaxOrder)), max(len(layout), 2)
	case native.EffectAmbisonicsPanning:
		s := (*native.AmbisonicsPanningEffectSettings)(settings)
		layout, ok := speakers(s.SpeakerLayout)
		if !ok || s.MaxOrder < 0 {
			return nil, false
		}
		st.layout, st.maxOrder = layout, int(s.MaxOrder)
		st.numInputs, outputs = ambisonicChannels(int(s.MaxOrder)), len(layout)
	case native.EffectAmbisonicsBinaural:
		s := (*native.AmbisonicsBinauralEffectSettings)(settings)
		if s.MaxOrder < 0 || !e.liveHRTF(s.HRTF) {
			return nil, false
		}
		st.hrtf, st.maxOrder, st.delay = s.HRTF, int(s.MaxOrder), hrtfTail
		st.numInputs, outputs = ambisonicChannels(int(s.MaxOrder)), 2
	case native.EffectAmbisonicsRotation:
		s := (*native.AmbisonicsRotationEffectSettings)(settings)
		if s.MaxOrder < 0 {
			return nil, false
		}
		st.maxOrder = int(s.MaxOrder)
		st.numInputs = ambisonicChannels(st.maxOrder)
		outputs = st.numInputs
	default:
		return nil, false
	}

	st.hist = make([][]float32, outputs)
	st.gains = make([][]float32, outputs)
	for o := range outputs {
		st.hist[o] = make([]float32, st.delay)
		st.gains[o] = make([]float32, st.numInputs)
	}
	st.line = make([]float32, st.delay+st.frame)
	st.mixed = make([]float32, st.frame)
	return st, true
}

func channels(b *native.AudioBuffer) [][]float32 {
	if b == nil || b.NumChannels == 0 {
		return nil
	}
	ptrs := unsafe.Slice(b.Data, b.NumChannels)
	out := make([][]float32, len(ptrs))
	for i, p := range ptrs {
		out[i] = unsafe.Slice(p, b.NumSamples)
	}
	return out
}

func (st *effectState) checkFrame(in, out *native.AudioBuffer) {
	for _, b := range []*native.AudioBuffer{in, out} {
		if b != nil && int(b.NumSamples) != st.frame {
			panic(fmt.Sprintf("emulator: %s effect got %d samples, frame size is %d", st.kind, b.NumSamples, st.frame))
		}
	}
	if out != nil && int(out.NumChannels) > len(st.hist) {
		panic(fmt.Sprintf("emulator: %s effect got %d output channels, has %d", st.kind, out.NumChannels, len(st.hist)))
	}
	if in != nil && int(in.NumChannels) > st.numInputs {
		panic(fmt.Sprintf("emulator: %s effect got %d input channels, accepts %d", st.kind, in.NumChannels, st.numInputs))
	}
}

// process mixes inputs through gains into the delay line and emits one frame
// per output. A nil inputs slice renders silence, which drains the tail.
func (st *effectState) process(inputs, outputs [][]float32, gains [][]float32) {
	for o, out := range outputs {
		mixed := st.mixed
		clear(mixed)
		if inputs != nil {
			for i, in := range inputs {
				g := gains[o][i]
				if g == 0 {
					continue
				}
				for n := range mixed {
					mixed[n] += g * in[n]
				}
			}
		}
		if st.delay == 0 {
			copy(out, mixed)
			continue
		}
		line := st.line
		copy(line, st.hist[o])
		copy(line[st.delay:], mixed)
		copy(out, line[:st.frame])
		copy(st.hist[o], line[st.frame:])
	}
}

func (st *effectState) tailState() native.EffectState {
	for _, h := range st.hist {
		for _, v := range h {
			if v != 0 {
				return native.EffectTailRemaining
			}
		}
	}
	return native.EffectTailComplete
}

func (e *Emulator) volume(h native.Handle) float32 {
	if p, ok := e.lookup(h, KindHRTF); ok {
		return p.(*hrtfState).volume
	}
	return 1
}

func (e *Emulator) gains(st *effectState, params unsafe.Pointer, numIn, numOut int) [][]float32 {
	g := st.gains[:numOut]
	for _, row := range g {
		clear(row)
	}
	if params == nil {
		return g
	}

	switch st.kind {
	case native.EffectBinaural:
		p := (*native.BinauralEffectParams)(params)
		d := normalize(p.Direction)
		lr := stereoPan(d.X)
		blend := clamp(p.SpatialBlend, 0, 1)
		vol := e.volume(p.HRTF)
		for o := range g {
			gain := vol * (blend*lr[o] + (1-blend)*float32(math.Sqrt2/2))
			for i := range numIn {
				g[o][i] = gain / float32(numIn)
			}
		}
		if p.PeakDelays != nil {
			itd := float32(maxITDSeconds * float64(st.rate))
			pd := unsafe.Slice(p.PeakDelays, 2)
			pd[0] = max(0, d.X) * itd
			pd[1] = max(0, -d.X) * itd
		}
	case native.EffectPanning:
		p := (*native.PanningEffectParams)(params)
		pan(g, 0, normalize(p.Direction), st.layout)
	case native.EffectVirtualSurround:
		p := (*native.VirtualSurroundEffectParams)(params)
		vol := e.volume(p.HRTF)
		scale := vol / float32(math.Sqrt(float64(len(st.layout))))
		for k, s := range st.layout {
			lr := stereoPan(normalize(s).X)
			g[0][k] = lr[0] * scale
			g[1][k] = lr[1] * scale
		}
	case native.EffectDirect:
		p := (*native.DirectEffectParams)(params)
		gain := directGain(p)
		for c := range min(numIn, numOut) {
			g[c][c] = gain
		}
	case native.EffectAmbisonicsEncode:
		p := (*native.AmbisonicsEncodeEffectParams)(params)
		d := normalize(p.Direction)
		g[0][0] = 1
		if min(int(p.Order), st.maxOrder) >= 1 {
			g[1][0], g[2][0], g[3][0] = d.Y, d.Z, d.X
		}
	case native.EffectAmbisonicsDecode:
		p := (*native.AmbisonicsDecodeEffectParams)(params)
		layout := st.layout
		if p.Binaural != native.False {
			layout = headphones
		}
		decode(g, layout, p.Orientation, min(int(p.Order), st.maxOrder), e.volume(p.HRTF))
	case native.EffectAmbisonicsPanning:
		p := (*native.AmbisonicsPanningEffectParams)(params)
		decode(g, st.layout, identity, min(int(p.Order), st.maxOrder), 1)
	case native.EffectAmbisonicsBinaural:
		p := (*native.AmbisonicsBinauralEffectParams)(params)
		decode(g, headphones, identity, min(int(p.Order), st.maxOrder), e.volume(p.HRTF))
	case native.EffectAmbisonicsRotation:
		p := (*native.AmbisonicsRotationEffectParams)(params)
		rotate(g, p.Orientation, min(int(p.Order), st.maxOrder))
	}
	return g
}

func directGain(p *native.DirectEffectParams) float32 {
	gain := float32(1)
	if p.Flags&native.DirectApplyDistanceAttenuation != 0 {
		gain *= p.DistanceAttenuation
	}
	if p.Flags&native.DirectApplyAirAbsorption != 0 {
		gain *= (p.AirAbsorption[0] + p.AirAbsorption[1] + p.AirAbsorption[2]) / 3
	}
	if p.Flags&native.DirectApplyDirectivity != 0 {
		gain *= p.Directivity
	}
	if p.Flags&native.DirectApplyOcclusion != 0 {
		occluded := float32(0)
		if p.Flags&native.DirectApplyTransmission != 0 {
			occluded = p.Transmission[0]
			if p.TransmissionType == native.TransmissionFrequencyDependent {
				occluded = (p.Transmission[0] + p.Transmission[1] + p.Transmission[2]) / 3
			}
		}
		gain *= p.Occlusion + (1-p.Occlusion)*occluded
	}
	return gain
}

// pan writes power-normalized gains from input column in towards each speaker.
func pan(g [][]float32, in int, d native.Vector3, layout []native.Vector3) {
	var power float32
	for k, s := range layout {
		w := max(0, dot(d, normalize(s)))
		g[k][in] = w
		power += w * w
	}
	if power == 0 {
		for k := range layout {
			g[k][in] = 1 / float32(math.Sqrt(float64(len(layout))))
		}
		return
	}
	norm := 1 / float32(math.Sqrt(float64(power)))
	for k := range layout {
		g[k][in] *= norm
	}
}

// decode samples a first-order sound field in each speaker direction, after
// rotating the speakers by orientation. ACN channel order: W, Y, Z, X.
func decode(g [][]float32, layout []native.Vector3, orientation native.CoordinateSpace3, order int, volume float32) {
	scale := volume / float32(len(layout))
	for k, s := range layout {
		s = normalize(s)
		w := add(add(mul(orientation.Right, s.X), mul(orientation.Up, s.Y)), mul(orientation.Ahead, -s.Z))
		g[k][0] = scale
		if order >= 1 {
			g[k][1], g[k][2], g[k][3] = w.Y*scale, w.Z*scale, w.X*scale
		}
	}
}

func rotate(g [][]float32, o native.CoordinateSpace3, order int) {
	for c := range g {
		g[c][c] = 1
	}
	if order < 1 || len(g) < 4 {
		return
	}
	for _, c := range []int{1, 2, 3} {
		g[c][c] = 0
	}
	// input columns: Y=1, Z=2, X=3
	g[1][3], g[1][1], g[1][2] = o.Up.X, o.Up.Y, o.Up.Z
	g[2][3], g[2][1], g[2][2] = -o.Ahead.X, -o.Ahead.Y, -o.Ahead.Z
	g[3][3], g[3][1], g[3][2] = o.Right.X, o.Right.Y, o.Right.Z
}

func stereoPan(x float32) [2]float32 {
	x = clamp(x, -1, 1)
	return [2]float32{
		float32(math.Sqrt(float64((1 - x) / 2))),
		float32(math.Sqrt(float64((1 + x) / 2))),
	}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

func dot(a, b native.Vector3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func add(a, b native.Vector3) native.Vector3 {
	return native.Vector3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func mul(a native.Vector3, s float32) native.Vector3 {
	return native.Vector3{X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

func normalize(v native.Vector3) native.Vector3 {
	n := float32(math.Sqrt(float64(dot(v, v))))
	if n == 0 {
		return v
	}
	return mul(v, 1/n)
}
