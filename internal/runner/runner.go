// Package runner drives a reloader from a single goroutine: it ticks update,
// polls for artifact changes and serializes forced reloads requested by other
// goroutines (the HTTP surface) into the same loop.
package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livereload/internal/abi"
	"livereload/internal/reloader"
	"livereload/pkg/types"
)

// Driver is the subset of *reloader.Reloader the loop needs.
type Driver interface {
	Update() abi.ShouldQuit
	Reload() error
	ReloadNow() error
	State() reloader.State
	Stats() reloader.Stats
}

// ErrNotRunning is returned by RequestReload when the loop has exited.
var ErrNotRunning = errors.New("runner not running")

// Config tunes the loop.
type Config struct {
	Tick              time.Duration // interval between update calls (default 16ms)
	ReloadEvery       int           // call Reload every N ticks (default 1)
	FailOnReloadError bool          // end Run with the first reload error
	Logger            *zerolog.Logger
}

const defaultTick = 16 * time.Millisecond

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = defaultTick
	}
	if c.ReloadEvery <= 0 {
		c.ReloadEvery = 1
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}

type reloadResult struct {
	resp types.ReloadResponse
	err  error
}

// Runner owns the driving goroutine of one Driver.
type Runner struct {
	drv Driver
	cfg Config
	log zerolog.Logger

	requests chan chan reloadResult
	done     chan struct{}
	once     sync.Once

	mu        sync.Mutex
	running   bool
	ticks     uint64
	startedAt time.Time
	lastErr   string
}

// New prepares a runner; call Run to start the loop.
func New(drv Driver, cfg Config) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		drv:      drv,
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "runner").Logger(),
		requests: make(chan chan reloadResult),
		done:     make(chan struct{}),
	}
}

// Run ticks until the artifact asks to quit, ctx is cancelled, or (with
// FailOnReloadError) a reload fails. The driver is closed on return when it
// implements io.Closer. Run must be called at most once.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.mu.Lock()
	r.running = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.Tick)
	defer func() {
		ticker.Stop()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.once.Do(func() { close(r.done) })
		if c, ok := r.drv.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				r.log.Error().Err(cerr).Msg("close driver")
				err = errors.Join(err, cerr)
			}
		}
	}()

	r.log.Info().Dur("tick", r.cfg.Tick).Int("reload_every", r.cfg.ReloadEvery).Msg("runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("runner stopping: context done")
			return nil
		case reply := <-r.requests:
			reply <- r.forceReload()
		case <-ticker.C:
			quit, err := r.tick()
			if err != nil {
				return err
			}
			if quit {
				r.log.Info().Uint64("ticks", r.Ticks()).Msg("runner stopping: artifact requested quit")
				return nil
			}
		}
	}
}

func (r *Runner) tick() (bool, error) {
	start := time.Now()
	q := r.drv.Update()
	tickDuration.Observe(time.Since(start).Seconds())
	ticksTotal.Inc()
	r.mu.Lock()
	r.ticks++
	n := r.ticks
	r.mu.Unlock()
	if q == abi.Yes {
		return true, nil
	}
	if n%uint64(r.cfg.ReloadEvery) != 0 {
		return false, nil
	}
	if err := r.drv.Reload(); err != nil {
		r.setErr(err)
		reloadErrorsTotal.Inc()
		r.log.Warn().Err(err).Msg("reload failed")
		if r.cfg.FailOnReloadError {
			return false, err
		}
	}
	return false, nil
}

func (r *Runner) forceReload() reloadResult {
	start := time.Now()
	err := r.drv.ReloadNow()
	st := r.drv.Stats()
	res := reloadResult{
		resp: types.ReloadResponse{
			State:      string(st.State),
			Generation: st.Generation,
			DurationMS: time.Since(start).Milliseconds(),
		},
		err: err,
	}
	if err != nil {
		r.setErr(err)
		reloadErrorsTotal.Inc()
		r.log.Warn().Err(err).Msg("forced reload failed")
	} else {
		r.log.Info().Uint64("generation", st.Generation).Msg("forced reload")
	}
	return res
}

func (r *Runner) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}

// RequestReload asks the loop to run ReloadNow between two ticks and waits
// for the result.
func (r *Runner) RequestReload(ctx context.Context) (types.ReloadResponse, error) {
	reply := make(chan reloadResult, 1)
	select {
	case r.requests <- reply:
	case <-r.done:
		return types.ReloadResponse{}, ErrNotRunning
	case <-ctx.Done():
		return types.ReloadResponse{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.resp, res.err
	case <-ctx.Done():
		return types.ReloadResponse{}, ctx.Err()
	}
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Ticks returns the number of completed ticks.
func (r *Runner) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Ready reports whether an artifact is loaded and the loop is running.
func (r *Runner) Ready() bool {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	return running && r.drv.State() == reloader.StateLoaded
}

// Status returns a snapshot for /status.
func (r *Runner) Status() types.StatusResponse {
	st := r.drv.Stats()
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := types.StatusResponse{
		Artifact:       st.Path,
		State:          string(st.State),
		Running:        r.running,
		Generation:     st.Generation,
		Ticks:          r.ticks,
		Updates:        st.Updates,
		Reloads:        st.Reloads,
		ReloadFailures: st.ReloadFailures,
		StateBytes:     st.StateBytes,
		LastError:      st.LastError,
		ServerTimeUnix: now.Unix(),
	}
	if out.LastError == "" {
		out.LastError = r.lastErr
	}
	if !st.LoadedAt.IsZero() {
		out.LoadedAtUnix = st.LoadedAt.Unix()
	}
	if !r.startedAt.IsZero() {
		out.UptimeSeconds = int64(now.Sub(r.startedAt).Seconds())
	}
	return out
}
