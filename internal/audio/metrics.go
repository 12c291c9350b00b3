package audio

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	renderFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nimbus",
		Name:      "render_frames_total",
		Help:      "Frames rendered, by phase (source or tail).",
	}, []string{"phase"})

	playbackUnderruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nimbus",
		Name:      "playback_underruns_total",
		Help:      "Output callbacks that found no rendered frame and played silence.",
	})
)

// RegisterMetrics registers the renderer collectors with reg. Registering
// twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{renderFrames, playbackUnderruns} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
