// SPDX-License-Identifier: MIT

package spatial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"nimbus/internal/native"
)

// The runtime's bakers share global state, so at most one bake may run per
// process. A second caller fails fast instead of queueing.
var bakeGuard sync.Mutex

// WithBakeLock runs fn while holding the process-wide bake lock. It returns
// ErrBakeInProgress without calling fn when another bake holds the lock.
func WithBakeLock(op string, fn func() error) error {
	if !bakeGuard.TryLock() {
		return &Error{Kind: KindBakeInProgress, Op: op}
	}
	defer bakeGuard.Unlock()
	return fn()
}

// ReflectionsBakeParams configure a reflections bake. Scene and Probes are
// passed through from the scene layer unchanged.
type ReflectionsBakeParams struct {
	Scene                 native.Handle
	Probes                native.Handle
	SceneType             native.SceneType
	Identifier            native.BakedDataIdentifier
	Flags                 native.ReflectionsBakeFlags
	NumRays               int
	NumDiffuseSamples     int
	NumBounces            int
	SimulatedDuration     float32
	SavedDuration         float32
	Order                 int
	NumThreads            int
	RayBatchSize          int
	IrradianceMinDistance float32
	BakeBatchSize         int
	// OpenCLDevice and RadeonRaysDevice are only needed for GPU scenes.
	OpenCLDevice     *OpenCLDevice
	RadeonRaysDevice *RadeonRaysDevice
}

func (p *ReflectionsBakeParams) native() native.ReflectionsBakeParams {
	np := native.ReflectionsBakeParams{
		Scene:                 p.Scene,
		Probes:                p.Probes,
		SceneType:             p.SceneType,
		Identifier:            p.Identifier,
		BakeFlags:             p.Flags,
		NumRays:               int32(p.NumRays),
		NumDiffuseSamples:     int32(p.NumDiffuseSamples),
		NumBounces:            int32(p.NumBounces),
		SimulatedDuration:     p.SimulatedDuration,
		SavedDuration:         p.SavedDuration,
		Order:                 int32(p.Order),
		NumThreads:            int32(p.NumThreads),
		RayBatchSize:          int32(p.RayBatchSize),
		IrradianceMinDistance: p.IrradianceMinDistance,
		BakeBatchSize:         int32(p.BakeBatchSize),
	}
	if p.OpenCLDevice != nil {
		np.OpenCLDevice = p.OpenCLDevice.Raw()
	}
	if p.RadeonRaysDevice != nil {
		np.RadeonRaysDevice = p.RadeonRaysDevice.Raw()
	}
	return np
}

// ErrBakeCanceled is returned by a bake stopped by a cancel call.
var ErrBakeCanceled = errors.New("bake canceled")

// baker tracks cancellation for one of the runtime's bakers.
type baker struct {
	op       string
	canceled atomic.Bool
	cancel   func(lib *native.Library) func(ctx native.Handle)
}

var (
	reflectionsBaker = &baker{
		op:     "bake reflections",
		cancel: func(lib *native.Library) func(native.Handle) { return lib.ReflectionsBakerCancelBake },
	}
	pathBaker = &baker{
		op:     "bake paths",
		cancel: func(lib *native.Library) func(native.Handle) { return lib.PathBakerCancelBake },
	}
)

func (b *baker) cancelOn(rt *Context) {
	b.canceled.Store(true)
	b.cancel(rt.lib)(rt.Raw())
}

// run holds the bake lock for bake. Cancelling ctx while the native call
// runs cancels the bake.
func (b *baker) run(ctx context.Context, rt *Context, progress ProgressFunc, bake func(cb native.Callback, userData uintptr)) error {
	return WithBakeLock(b.op, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.canceled.Store(false)
		stop := context.AfterFunc(ctx, func() { b.cancelOn(rt) })
		defer stop()

		var cb native.Callback
		var id uintptr
		if progress != nil {
			cb = trampolinesFor(rt.lib).progress
			id = callbacks.register(progress)
			defer callbacks.unregister(id)
		}
		bake(cb, id)

		if !b.canceled.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w", b.op, ErrBakeCanceled)
	})
}

// BakeReflections runs a reflections bake, reporting progress to progress
// when it is non-nil. It returns ErrBakeCanceled when CancelBakeReflections
// stops it, or ctx's error when ctx does.
func BakeReflections(ctx context.Context, rt *Context, params ReflectionsBakeParams, progress ProgressFunc) error {
	np := params.native()
	return reflectionsBaker.run(ctx, rt, progress, func(cb native.Callback, id uintptr) {
		handleLog.Debugf("baking reflections: %d rays, %d bounces", params.NumRays, params.NumBounces)
		rt.lib.ReflectionsBakerBake(rt.Raw(), &np, cb, id)
	})
}

// CancelBakeReflections stops a running reflections bake. It does not take
// the bake lock, so it returns while the bake is still unwinding. A cancel
// with no bake running has no effect.
func CancelBakeReflections(rt *Context) {
	reflectionsBaker.cancelOn(rt)
}

// PathBakeParams configure a pathing bake over a probe batch.
type PathBakeParams struct {
	Scene      native.Handle
	Probes     native.Handle
	Identifier native.BakedDataIdentifier
	NumSamples int
	// Radius is the probe influence radius.
	Radius     float32
	Threshold  float32
	VisRange   float32
	PathRange  float32
	NumThreads int
}

func (p *PathBakeParams) native() native.PathBakeParams {
	return native.PathBakeParams{
		Scene:      p.Scene,
		Probes:     p.Probes,
		Identifier: p.Identifier,
		NumSamples: int32(p.NumSamples),
		Radius:     p.Radius,
		Threshold:  p.Threshold,
		VisRange:   p.VisRange,
		PathRange:  p.PathRange,
		NumThreads: int32(p.NumThreads),
	}
}

// BakePaths runs a pathing bake under the same process-wide lock as
// BakeReflections.
func BakePaths(ctx context.Context, rt *Context, params PathBakeParams, progress ProgressFunc) error {
	np := params.native()
	return pathBaker.run(ctx, rt, progress, func(cb native.Callback, id uintptr) {
		handleLog.Debugf("baking paths: %d samples, range %.1f", params.NumSamples, params.PathRange)
		rt.lib.PathBakerBake(rt.Raw(), &np, cb, id)
	})
}

// CancelBakePaths stops a running pathing bake.
func CancelBakePaths(rt *Context) {
	pathBaker.cancelOn(rt)
}
