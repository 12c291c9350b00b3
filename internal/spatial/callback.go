package spatial

import (
	"sync"

	"nimbus/internal/log"
	"nimbus/internal/native"
)

// ProgressFunc receives bake progress in [0, 1].
type ProgressFunc func(progress float32)

// registry maps the user-data words handed to native calls back to Go
// values. Native code only ever sees the integer id.
type registry struct {
	mu   sync.RWMutex
	next uintptr
	fns  map[uintptr]any
}

var callbacks = &registry{fns: make(map[uintptr]any)}

func (r *registry) register(fn any) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.fns[r.next] = fn
	return r.next
}

func (r *registry) lookup(id uintptr) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fns[id]
}

func (r *registry) unregister(id uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fns, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}

// trampolines are the native function pointers for one library. They are
// created once and never freed: purego callbacks cannot be released.
type trampolines struct {
	log      native.Callback
	progress native.Callback
}

var (
	trampolineMu sync.Mutex
	trampolineBy = make(map[*native.Library]*trampolines)
)

func trampolinesFor(lib *native.Library) *trampolines {
	trampolineMu.Lock()
	defer trampolineMu.Unlock()
	if t, ok := trampolineBy[lib]; ok {
		return t
	}
	t := &trampolines{
		log:      lib.NewCallback(native.LogFunc(nativeLogTrampoline)),
		progress: lib.NewCallback(native.ProgressFunc(progressTrampoline)),
	}
	trampolineBy[lib] = t
	return t
}

var runtimeLog = log.Named("phonon")

func nativeLogTrampoline(level native.LogLevel, message *byte) {
	msg := native.GoString(message)
	switch level {
	case native.LogDebug:
		runtimeLog.Debugf("%s", msg)
	case native.LogWarning:
		runtimeLog.Warnf("%s", msg)
	case native.LogError:
		runtimeLog.Errorf("%s", msg)
	default:
		runtimeLog.Infof("%s", msg)
	}
}

func progressTrampoline(progress float32, userData uintptr) {
	if fn, ok := callbacks.lookup(userData).(ProgressFunc); ok {
		fn(progress)
	}
}
