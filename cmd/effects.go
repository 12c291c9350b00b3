package cmd

import (
	"fmt"

	"nimbus/internal/audiobuf"
	"nimbus/internal/config"
	"nimbus/internal/effect"
	"nimbus/internal/native"
	"nimbus/internal/source"
	"nimbus/internal/spatial"
)

// buildProcessor creates the effect named by cfg.Kind and adapts src to its
// input, downmixing to mono where the effect takes a point source.
func buildProcessor(rt *spatial.Context, as spatial.AudioSettings, hrtf *spatial.HRTF, cfg config.EffectConfig, src *audiobuf.Buffer) (effect.Processor, *audiobuf.Buffer, error) {
	dir := effect.Vector3{X: cfg.X, Y: cfg.Y, Z: cfg.Z}
	layout, err := effect.ParseLayout(cfg.SpeakerLayout)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Kind {
	case "binaural":
		in := src
		if src.NumChannels() > 2 {
			in = source.Mono(src)
		}
		e, err := effect.NewBinaural(rt, as, effect.BinauralSettings{HRTF: hrtf})
		if err != nil {
			return nil, nil, err
		}
		return effect.Bind(e, effect.BinauralParams{
			Direction:     dir,
			Interpolation: native.HRTFInterpolationBilinear,
			SpatialBlend:  cfg.SpatialBlend,
		}), in, nil

	case "panning":
		e, err := effect.NewPanning(rt, as, effect.PanningSettings{SpeakerLayout: layout})
		if err != nil {
			return nil, nil, err
		}
		return effect.Bind(e, effect.PanningParams{Direction: dir}), source.Mono(src), nil

	case "virtual_surround":
		if n := layout.NumChannels(); src.NumChannels() != n {
			return nil, nil, fmt.Errorf("virtual surround over %s needs a %d-channel source, got %d", layout, n, src.NumChannels())
		}
		e, err := effect.NewVirtualSurround(rt, as, effect.VirtualSurroundSettings{SpeakerLayout: layout, HRTF: hrtf})
		if err != nil {
			return nil, nil, err
		}
		return effect.Bind(e, effect.VirtualSurroundParams{}), src, nil

	case "direct":
		e, err := effect.NewDirect(rt, as, effect.DirectSettings{NumChannels: src.NumChannels()})
		if err != nil {
			return nil, nil, err
		}
		var p effect.DirectParams
		if cfg.DistanceAttenuation > 0 {
			att := cfg.DistanceAttenuation
			p.DistanceAttenuation = &att
		}
		return effect.Bind(e, p), src, nil

	case "ambisonics_binaural", "ambisonics_decode", "ambisonics_panning":
		p, err := ambisonicsChain(rt, as, hrtf, cfg, layout, dir)
		if err != nil {
			return nil, nil, err
		}
		return p, source.Mono(src), nil
	}
	return nil, nil, fmt.Errorf("unknown effect kind %q", cfg.Kind)
}

// ambisonicsChain encodes a point source into a sound field of the
// configured order and renders it with the decoder cfg.Kind names.
func ambisonicsChain(rt *spatial.Context, as spatial.AudioSettings, hrtf *spatial.HRTF, cfg config.EffectConfig, layout effect.SpeakerLayout, dir effect.Vector3) (effect.Processor, error) {
	order := cfg.AmbisonicsOrder
	enc, err := effect.NewAmbisonicsEncode(rt, as, effect.AmbisonicsEncodeSettings{MaxOrder: order})
	if err != nil {
		return nil, err
	}
	encode := effect.Bind(enc, effect.AmbisonicsEncodeParams{Direction: dir, Order: order})

	var render effect.Processor
	switch cfg.Kind {
	case "ambisonics_binaural":
		var e *effect.AmbisonicsBinaural
		if e, err = effect.NewAmbisonicsBinaural(rt, as, effect.AmbisonicsBinauralSettings{HRTF: hrtf, MaxOrder: order}); err == nil {
			render = effect.Bind(e, effect.AmbisonicsBinauralParams{Order: order})
		}
	case "ambisonics_decode":
		var e *effect.AmbisonicsDecode
		if e, err = effect.NewAmbisonicsDecode(rt, as, effect.AmbisonicsDecodeSettings{SpeakerLayout: layout, HRTF: hrtf, MaxOrder: order}); err == nil {
			render = effect.Bind(e, effect.AmbisonicsDecodeParams{Order: order})
		}
	case "ambisonics_panning":
		var e *effect.AmbisonicsPanning
		if e, err = effect.NewAmbisonicsPanning(rt, as, effect.AmbisonicsPanningSettings{SpeakerLayout: layout, MaxOrder: order}); err == nil {
			render = effect.Bind(e, effect.AmbisonicsPanningParams{Order: order})
		}
	}
	if err != nil {
		enc.Release()
		return nil, err
	}

	chain, err := effect.NewChain(encode, render)
	if err != nil {
		encode.Release()
		render.Release()
		return nil, err
	}
	return chain, nil
}
