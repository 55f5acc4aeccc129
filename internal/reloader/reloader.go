package reloader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livereload/internal/abi"
	"livereload/internal/common/fsutil"
	"livereload/internal/loader"
	"livereload/internal/state"
	"livereload/internal/watch"
)

// Reloader owns one artifact at a time, the state buffer that survives across
// artifacts, and the optional host value H handed to every lifecycle call.
type Reloader[H any] struct {
	cfg     Config
	path    string // canonical
	host    *H     // own allocation; its address is handed to C
	hostSig uint64
	log     zerolog.Logger

	lib     loader.Library // nil while unloaded
	table   abi.Table
	buf     state.Buffer
	watcher watch.Source
	closed  bool

	driving atomic.Bool

	statsMu sync.Mutex
	stats   Stats
}

// New loads the host-less variant of the artifact at path.
func New(path string) (*Reloader[NoHost], error) {
	return NewWithConfig(Config{Path: path}, NoHost{})
}

// NewWithHost loads the artifact at path and passes host to every call.
func NewWithHost[H any](path string, host H) (*Reloader[H], error) {
	return NewWithConfig(Config{Path: path}, host)
}

// NewWithConfig opens the artifact, sizes the state buffer, starts watching
// the artifact's directory and runs init. On error no init has run and
// nothing is left open.
func NewWithConfig[H any](cfg Config, host H) (*Reloader[H], error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, configError{msg: "empty artifact path"}
	}
	r := &Reloader[H]{cfg: cfg, host: new(H), log: *cfg.Logger}
	*r.host = host
	sig, err := r.resolveHostSignature()
	if err != nil {
		return nil, err
	}
	r.hostSig = sig

	canonical, err := fsutil.Canonical(cfg.Path)
	if err != nil {
		return nil, &loader.Error{Kind: loader.KindIO, Path: cfg.Path, Err: err}
	}
	r.path = canonical
	r.log = r.log.With().Str("artifact", canonical).Logger()
	r.stats.Path = canonical

	lib, err := r.open()
	if err != nil {
		return nil, err
	}
	r.buf.Resize(lib.Table().Size())

	dir := filepath.Dir(canonical)
	w, err := cfg.Watch(dir, cfg.Debounce, r.log)
	if err != nil {
		_ = lib.Close()
		return nil, watchError{dir: dir, err: err}
	}
	r.watcher = w

	r.install(lib)
	r.table.Init(r.hostPtr(), r.buf.Pointer())
	r.publish(EventInit, "", map[string]any{"state_bytes": r.buf.Len()})
	r.log.Info().Int("state_bytes", r.buf.Len()).Msg("artifact loaded")
	return r, nil
}

func (r *Reloader[H]) resolveHostSignature() (uint64, error) {
	if r.hostless() {
		if r.cfg.HostSignature != 0 {
			return 0, configError{msg: "host signature set for a host-less reloader"}
		}
		return 0, nil
	}
	if r.cfg.HostSignature != 0 {
		return r.cfg.HostSignature, nil
	}
	if s, ok := any(*r.host).(Signer); ok && s.HostSignature() != 0 {
		return s.HostSignature(), nil
	}
	return 0, configError{msg: fmt.Sprintf("host %T has no layout signature", *r.host)}
}

func (r *Reloader[H]) hostless() bool { return unsafe.Sizeof(*r.host) == 0 }

func (r *Reloader[H]) hostPtr() unsafe.Pointer {
	if r.hostless() {
		return nil
	}
	return unsafe.Pointer(r.host)
}

// open loads the canonical path and checks the host contract. No lifecycle
// entry of the new table has been called when it returns.
func (r *Reloader[H]) open() (loader.Library, error) {
	lib, err := r.cfg.Opener.Open(r.path)
	if err != nil {
		return nil, err
	}
	if err := abi.CheckHost(lib.Table().Header(), r.hostSig); err != nil {
		_ = lib.Close()
		return nil, fmt.Errorf("load %s: %w", r.path, err)
	}
	return lib, nil
}

func (r *Reloader[H]) install(lib loader.Library) {
	r.lib = lib
	r.table = lib.Table()
	now := time.Now()
	loadedGauge.Set(1)
	stateBytesGauge.Set(float64(r.buf.Len()))
	r.statsMu.Lock()
	r.stats.State = StateLoaded
	r.stats.Generation++
	r.stats.StateBytes = r.buf.Len()
	r.stats.LoadedAt = now
	r.statsMu.Unlock()
}

// drop closes the current library. The table must not be used afterwards.
func (r *Reloader[H]) drop() error {
	lib := r.lib
	r.lib, r.table = nil, nil
	loadedGauge.Set(0)
	r.statsMu.Lock()
	r.stats.State = StateUnloaded
	r.statsMu.Unlock()
	if lib == nil {
		return nil
	}
	if err := lib.Close(); err != nil {
		r.log.Warn().Err(err).Msg("close artifact")
		return err
	}
	return nil
}

func (r *Reloader[H]) enter() bool { return r.driving.CompareAndSwap(false, true) }
func (r *Reloader[H]) leave()      { r.driving.Store(false) }

// Update forwards one tick to the loaded artifact. With nothing loaded it
// does nothing and returns abi.No.
func (r *Reloader[H]) Update() abi.ShouldQuit {
	if !r.enter() {
		r.log.Error().Msg("concurrent Update refused")
		return abi.No
	}
	defer r.leave()
	if r.table == nil {
		return abi.No
	}
	q := r.table.Update(r.hostPtr(), r.buf.Pointer())
	updatesTotal.Inc()
	r.statsMu.Lock()
	r.stats.Updates++
	r.statsMu.Unlock()
	return q
}

// Reload drains pending watch events and reloads if any of them is a create
// or write of the artifact path. Otherwise it does nothing.
func (r *Reloader[H]) Reload() error {
	if !r.enter() {
		return busyError{op: "reload"}
	}
	defer r.leave()
	if r.closed {
		return ErrClosed
	}
	matched := 0
	for _, ev := range watch.Drain(r.watcher) {
		if ev.Op.Changed() && filepath.Clean(ev.Path) == r.path {
			matched++
			watchEventsTotal.WithLabelValues("true").Inc()
			continue
		}
		watchEventsTotal.WithLabelValues("false").Inc()
	}
	switch {
	case matched > 0:
		r.publish(EventWatchMatch, "", map[string]any{"events": matched})
		return r.reloadNow("watch")
	case r.cfg.RetryUnloaded && r.lib == nil:
		return r.reloadNow("retry")
	}
	return nil
}

// ReloadNow unconditionally swaps the artifact: unload on the current table
// (if any), close it, open the file again, resize the state buffer to the new
// declared size and call reload. If the open fails the Reloader is left
// unloaded and the error is returned.
func (r *Reloader[H]) ReloadNow() error {
	if !r.enter() {
		return busyError{op: "reload"}
	}
	defer r.leave()
	if r.closed {
		return ErrClosed
	}
	return r.reloadNow("manual")
}

func (r *Reloader[H]) reloadNow(reason string) error {
	cycle := uuid.NewString()
	start := time.Now()
	log := r.log.With().Str("cycle", cycle).Str("reason", reason).Logger()
	r.publish(EventReloadStart, cycle, map[string]any{"reason": reason})

	if r.table != nil {
		r.table.Unload(r.hostPtr(), r.buf.Pointer())
		r.publish(EventUnload, cycle, nil)
		_ = r.drop()
	}

	lib, err := r.open()
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		r.statsMu.Lock()
		r.stats.ReloadFailures++
		r.stats.LastError = err.Error()
		r.statsMu.Unlock()
		r.publish(EventReloadFailed, cycle, map[string]any{"error": err.Error()})
		log.Warn().Err(err).Msg("reload failed; nothing loaded")
		return err
	}

	oldLen := r.buf.Len()
	r.buf.Resize(lib.Table().Size())
	lib.Table().Reload(r.hostPtr(), r.buf.Pointer())
	r.install(lib)

	dur := time.Since(start)
	reloadsTotal.WithLabelValues("ok").Inc()
	reloadDuration.Observe(dur.Seconds())
	r.statsMu.Lock()
	r.stats.Reloads++
	r.stats.LastError = ""
	r.stats.LastReloadAt = time.Now()
	r.statsMu.Unlock()
	r.publish(EventReloadDone, cycle, map[string]any{"state_bytes": r.buf.Len(), "previous_bytes": oldLen})
	log.Info().Dur("dur", dur).Int("state_bytes", r.buf.Len()).Msg("artifact reloaded")
	return nil
}

// Close runs deinit if an artifact is loaded, unloads it and stops watching.
// Calling Close again is a no-op.
func (r *Reloader[H]) Close() error {
	if !r.enter() {
		return busyError{op: "close"}
	}
	defer r.leave()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	if r.table != nil {
		r.table.Deinit(r.hostPtr(), r.buf.Pointer())
		r.publish(EventDeinit, "", nil)
		errs = append(errs, r.drop())
	}
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	r.statsMu.Lock()
	r.stats.State = StateClosed
	r.statsMu.Unlock()
	r.log.Info().Msg("reloader closed")
	return errors.Join(errs...)
}

// State reports whether an artifact is currently loaded.
func (r *Reloader[H]) State() State {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats.State
}

// Path returns the canonical artifact path.
func (r *Reloader[H]) Path() string { return r.path }

// Stats returns a snapshot of counters and state.
func (r *Reloader[H]) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Host gives the driver access to the host value between ticks. The pointer
// must not be used while a lifecycle call is running.
func (r *Reloader[H]) Host() *H { return r.host }

// SetHost replaces the host value.
func (r *Reloader[H]) SetHost(h H) { *r.host = h }

func (r *Reloader[H]) publish(name, cycle string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	r.cfg.Publisher.Publish(Event{Name: name, Path: r.path, CycleID: cycle, Fields: fields})
}
