package reloader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livereload/internal/abi"
	"livereload/internal/loader"
	"livereload/internal/testutil"
	"livereload/internal/watch"
)

type harness struct {
	path   string
	calls  *testutil.CallLog
	opener *testutil.FakeOpener
	src    *testutil.FakeSource
	pub    *MemoryPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, testutil.SharedLibName("app"))
	require.NoError(t, os.WriteFile(path, []byte("artifact"), 0o644))
	return &harness{
		path:   path,
		calls:  &testutil.CallLog{},
		opener: &testutil.FakeOpener{},
		src:    testutil.NewFakeSource(dir),
		pub:    NewMemoryPublisher(),
	}
}

func (h *harness) config() Config {
	return Config{
		Path:   h.path,
		Opener: h.opener,
		Watch: func(dir string, _ time.Duration, _ zerolog.Logger) (watch.Source, error) {
			return h.src, nil
		},
		Publisher: h.pub,
	}
}

func (h *harness) table(version string, size uintptr) *testutil.FakeTable {
	return &testutil.FakeTable{Version: version, Log: h.calls, StateSize: size}
}

func (h *harness) start(t *testing.T, tables ...any) *Reloader[NoHost] {
	t.Helper()
	h.opener.Push(tables...)
	r, err := NewWithConfig(h.config(), NoHost{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNew_InitRunsOnceAndFirst(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))

	assert.Equal(t, []string{"v1:init"}, h.calls.Entries())
	assert.Equal(t, StateLoaded, r.State())
	assert.Equal(t, h.path, r.Path())
	assert.Equal(t, h.src.Dir, filepath.Dir(r.Path()))

	r.Update()
	h.opener.Push(h.table("v2", 8))
	require.NoError(t, r.ReloadNow())
	r.Update()
	require.NoError(t, r.Close())

	assert.Equal(t, []string{
		"v1:init", "v1:update",
		"v1:unload", "v2:reload",
		"v2:update", "v2:deinit",
	}, h.calls.Entries())
	assert.Equal(t, 1, h.calls.Count("init"))
}

func TestReloadNow_UnloadImmediatelyPrecedesReload(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))
	for _, v := range []string{"v2", "v3", "v4"} {
		h.opener.Push(h.table(v, 8))
		require.NoError(t, r.ReloadNow())
	}
	entries := h.calls.Entries()
	for i, e := range entries {
		if strings.HasSuffix(e, ":reload") {
			require.Greater(t, i, 0)
			assert.Contains(t, entries[i-1], ":unload", "entry before %s", e)
		}
	}
	assert.Equal(t, 3, h.calls.Count("unload"))
	assert.Equal(t, 3, h.calls.Count("reload"))

	opened := h.opener.Opened()
	require.Len(t, opened, 4)
	for _, lib := range opened[:3] {
		assert.True(t, lib.Closed())
	}
	assert.False(t, opened[3].Closed())
}

func TestReloadNow_GrowPreservesPrefixAndZeroFills(t *testing.T) {
	h := newHarness(t)
	v1 := h.table("v1", 8)
	v1.OnInit = func(s []byte) { copy(s, []byte{1, 2, 3, 4, 5, 6, 7, 8}) }
	r := h.start(t, v1)

	var seen []byte
	v2 := h.table("v2", 16)
	v2.OnReload = func(s []byte) { seen = append([]byte(nil), s...) }
	h.opener.Push(v2)
	require.NoError(t, r.ReloadNow())

	require.Len(t, seen, 16)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, seen[:8])
	assert.Equal(t, make([]byte, 8), seen[8:])
	assert.Equal(t, 16, r.Stats().StateBytes)
}

func TestReloadNow_ShrinkTruncates(t *testing.T) {
	h := newHarness(t)
	v1 := h.table("v1", 16)
	v1.OnInit = func(s []byte) {
		for i := range s {
			s[i] = byte(i + 1)
		}
	}
	r := h.start(t, v1)

	var seen []byte
	v2 := h.table("v2", 8)
	v2.OnReload = func(s []byte) { seen = append([]byte(nil), s...) }
	h.opener.Push(v2)
	require.NoError(t, r.ReloadNow())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, seen)

	// growing again must not bring the discarded tail back
	v3 := h.table("v3", 16)
	v3.OnReload = func(s []byte) { seen = append([]byte(nil), s...) }
	h.opener.Push(v3)
	require.NoError(t, r.ReloadNow())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, seen[:8])
	assert.Equal(t, make([]byte, 8), seen[8:])
}

func TestReloadNow_SameSizeKeepsAddressAndBytes(t *testing.T) {
	h := newHarness(t)
	v1 := h.table("v1", 8)
	v1.OnUpdate = func(s []byte) { s[0] = 42 }
	r := h.start(t, v1)
	r.Update()

	var got byte
	v2 := h.table("v2", 8)
	v2.OnReload = func(s []byte) { got = s[0] }
	h.opener.Push(v2)
	require.NoError(t, r.ReloadNow())

	assert.Equal(t, byte(42), got)
	var states []unsafe.Pointer
	for _, c := range h.calls.Calls() {
		if c.Entry != "size" {
			states = append(states, c.State)
		}
	}
	require.Len(t, states, 4)
	for _, p := range states[1:] {
		assert.Equal(t, states[0], p)
	}
}

func fill(s []byte, b byte) {
	for i := range s {
		s[i] = b
	}
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	fill(out, b)
	return out
}

// 8 -> 16 -> 8 -> 16: each unload/reload pair owns the bytes it wrote, and a
// shrink discards the tail for good.
func TestReloadNow_AlternatingSizes(t *testing.T) {
	h := newHarness(t)
	small := h.table("small", 8)
	small.OnInit = func(s []byte) { fill(s, 0x11) }
	small.OnUnload = func(s []byte) { fill(s, 0xA1) }
	r := h.start(t, small)

	var atBig []byte
	big := h.table("big", 16)
	big.OnReload = func(s []byte) {
		atBig = append([]byte(nil), s...)
		fill(s[:8], 0xB1)
		fill(s[8:], 0xB2)
	}
	big.OnUnload = func(s []byte) {
		fill(s[:8], 0xC1)
		fill(s[8:], 0xC2)
	}
	h.opener.Push(big)
	require.NoError(t, r.ReloadNow())
	assert.Equal(t, append(repeat(0xA1, 8), make([]byte, 8)...), atBig)
	assert.Equal(t, 16, r.Stats().StateBytes)

	var atSmall, live []byte
	small2 := h.table("small2", 8)
	small2.OnReload = func(s []byte) {
		atSmall = append([]byte(nil), s...)
		fill(s[:4], 0xD1)
	}
	small2.OnUpdate = func(s []byte) { live = append([]byte(nil), s...) }
	h.opener.Push(small2)
	require.NoError(t, r.ReloadNow())
	r.Update()

	assert.Equal(t, repeat(0xC1, 8), atSmall)
	assert.Equal(t, append(repeat(0xD1, 4), repeat(0xC1, 4)...), live)
	assert.Equal(t, 8, r.Stats().StateBytes)
	assert.Len(t, live, 8)

	var regrown []byte
	big2 := h.table("big2", 16)
	big2.OnReload = func(s []byte) { regrown = append([]byte(nil), s...) }
	h.opener.Push(big2)
	require.NoError(t, r.ReloadNow())
	assert.Equal(t, append(append(repeat(0xD1, 4), repeat(0xC1, 4)...), make([]byte, 8)...), regrown,
		"bytes written past 8 during the 16-byte generation resurfaced")
}

func TestUpdate_UnloadedIsNoAndSideEffectFree(t *testing.T) {
	h := newHarness(t)
	v1 := h.table("v1", 8)
	v1.Quit = abi.Yes
	r := h.start(t, v1, &loader.Error{Kind: loader.KindOpen, Path: h.path, Msg: "invalid ELF header"})

	err := r.ReloadNow()
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, StateUnloaded, r.State())

	before := h.calls.Calls()
	for i := 0; i < 3; i++ {
		assert.Equal(t, abi.No, r.Update())
	}
	assert.Equal(t, before, h.calls.Calls())
	assert.Zero(t, r.Stats().Updates)
}

func TestReload_NoMatchingEventIsNoop(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))

	require.NoError(t, r.Reload())
	h.src.Emit(filepath.Join(h.src.Dir, "other.so"), watch.Write)
	h.src.Emit(h.path, watch.Chmod)
	h.src.Emit(h.path, watch.Remove)
	require.NoError(t, r.Reload())

	assert.Len(t, h.opener.Opened(), 1)
	assert.Equal(t, []string{"v1:init"}, h.calls.Entries())
}

func TestReload_MatchingEventsCollapseIntoOneReload(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))

	h.opener.Push(h.table("v2", 8))
	h.src.Emit(h.path, watch.Create)
	h.src.Emit(h.path, watch.Write|watch.Chmod)
	require.NoError(t, r.Reload())

	assert.Equal(t, []string{"v1:init", "v1:unload", "v2:reload"}, h.calls.Entries())
	require.NoError(t, r.Reload())
	assert.Len(t, h.opener.Opened(), 2)
	assert.Equal(t, uint64(1), r.Stats().Reloads)
}

func TestReload_CorruptArtifactThenRecovery(t *testing.T) {
	h := newHarness(t)
	v1 := h.table("v1", 8)
	v1.OnInit = func(s []byte) { s[0] = 7 }
	r := h.start(t, v1, &loader.Error{Kind: loader.KindOpen, Path: h.path, Msg: "file too short"})

	h.src.Emit(h.path, watch.Write)
	err := r.Reload()
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, StateUnloaded, r.State())
	assert.Equal(t, abi.No, r.Update())
	st := r.Stats()
	assert.Equal(t, uint64(1), st.ReloadFailures)
	assert.NotEmpty(t, st.LastError)

	// nothing pending: no retry without the option
	require.NoError(t, r.Reload())
	assert.Equal(t, StateUnloaded, r.State())

	var kept byte
	v2 := h.table("v2", 8)
	v2.OnReload = func(s []byte) { kept = s[0] }
	h.opener.Push(v2)
	h.src.Emit(h.path, watch.Write)
	require.NoError(t, r.Reload())

	assert.Equal(t, StateLoaded, r.State())
	assert.Equal(t, byte(7), kept)
	assert.Equal(t, []string{"v1:init", "v1:unload", "v2:reload"}, h.calls.Entries())
	assert.Empty(t, r.Stats().LastError)
}

func TestReload_RetryUnloaded(t *testing.T) {
	h := newHarness(t)
	h.opener.Push(h.table("v1", 8), &loader.Error{Kind: loader.KindIO, Path: h.path, Err: os.ErrNotExist})
	cfg := h.config()
	cfg.RetryUnloaded = true
	r, err := NewWithConfig(cfg, NoHost{})
	require.NoError(t, err)
	defer r.Close()

	require.Error(t, r.ReloadNow())
	assert.Equal(t, StateUnloaded, r.State())

	h.opener.Push(h.table("v2", 8))
	require.NoError(t, r.Reload())
	assert.Equal(t, StateLoaded, r.State())
	assert.Equal(t, []string{"v1:init", "v1:unload", "v2:reload"}, h.calls.Entries())

	// loaded again: no events means no reload
	require.NoError(t, r.Reload())
	assert.Len(t, h.opener.Opened(), 2)
}

func TestNew_MismatchedHostMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	tb := h.table("v1", 8)
	tb.HostSig = abi.StandardHost.Signature()
	h.opener.Push(tb)

	_, err := NewWithConfig(h.config(), NoHost{})
	require.Error(t, err)
	assert.True(t, IsMismatchedHost(err))
	assert.Empty(t, h.calls.Entries())
	require.Len(t, h.opener.Opened(), 1)
	assert.True(t, h.opener.Opened()[0].Closed())
	assert.False(t, h.src.Closed(), "watch must not have been started")
}

type sizedHost struct {
	Counter uint64
	Flag    uint32
}

func (sizedHost) HostSignature() uint64 { return 0x5151 }

type unsignedHost struct{ N uint64 }

func TestNewWithHost_PassesHostPointer(t *testing.T) {
	h := newHarness(t)
	tb := h.table("v1", 8)
	tb.HostSig = 0x5151
	tb.OnUpdate = func([]byte) {}
	h.opener.Push(tb)

	r, err := NewWithConfig(h.config(), sizedHost{Counter: 3})
	require.NoError(t, err)
	defer r.Close()
	r.Update()

	for _, c := range h.calls.Calls() {
		if c.Entry == "size" {
			continue
		}
		assert.Equal(t, unsafe.Pointer(r.Host()), c.Host, c.Entry)
	}
	assert.Equal(t, uint64(3), (*sizedHost)(h.calls.Calls()[1].Host).Counter)

	// cgo rejects pointers into memory that itself holds Go pointers, so the
	// host must not live inside the Reloader.
	hp := uintptr(unsafe.Pointer(r.Host()))
	rp := uintptr(unsafe.Pointer(r))
	assert.False(t, hp >= rp && hp < rp+unsafe.Sizeof(*r), "host stored inside the Reloader")

	r.SetHost(sizedHost{Counter: 9})
	assert.Equal(t, uint64(9), r.Host().Counter)
	assert.Equal(t, hp, uintptr(unsafe.Pointer(r.Host())), "SetHost must keep the host address")

	// a table built for another layout is refused on reload
	other := h.table("v2", 8)
	other.HostSig = 0x6262
	h.opener.Push(other)
	err = r.ReloadNow()
	require.Error(t, err)
	assert.True(t, IsMismatchedHost(err))
	assert.Equal(t, StateUnloaded, r.State())
	assert.Zero(t, h.calls.Count("reload"))
}

func TestNewWithHost_HostlessPassesNil(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))
	r.Update()
	for _, c := range h.calls.Calls() {
		assert.Nil(t, c.Host, c.Entry)
	}
}

func TestNewWithConfig_Errors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := NewWithConfig(Config{}, NoHost{})
		assert.True(t, IsConfig(err))
	})
	t.Run("sized host without signature", func(t *testing.T) {
		h := newHarness(t)
		h.opener.Push(h.table("v1", 8))
		_, err := NewWithConfig(h.config(), unsignedHost{})
		assert.True(t, IsConfig(err))
		assert.Empty(t, h.opener.Opened())
	})
	t.Run("hostless with signature", func(t *testing.T) {
		h := newHarness(t)
		cfg := h.config()
		cfg.HostSignature = 1
		_, err := NewWithConfig(cfg, NoHost{})
		assert.True(t, IsConfig(err))
	})
	t.Run("explicit signature for unsigned host", func(t *testing.T) {
		h := newHarness(t)
		tb := h.table("v1", 8)
		tb.HostSig = 77
		h.opener.Push(tb)
		cfg := h.config()
		cfg.HostSignature = 77
		r, err := NewWithConfig(cfg, unsignedHost{})
		require.NoError(t, err)
		require.NoError(t, r.Close())
	})
	t.Run("missing artifact", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope.so"))
		require.Error(t, err)
		assert.True(t, IsIO(err))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
	t.Run("incompatible header", func(t *testing.T) {
		h := newHarness(t)
		h.opener.Push(&loader.Error{Kind: loader.KindABI, Path: h.path, Msg: "bad magic"})
		_, err := NewWithConfig(h.config(), NoHost{})
		assert.True(t, IsIncompatibleABI(err))
	})
	t.Run("watch setup", func(t *testing.T) {
		h := newHarness(t)
		h.opener.Push(h.table("v1", 8))
		cfg := h.config()
		cfg.Watch = func(string, time.Duration, zerolog.Logger) (watch.Source, error) {
			return nil, errors.New("too many open files")
		}
		_, err := NewWithConfig(cfg, NoHost{})
		require.Error(t, err)
		assert.True(t, IsWatch(err))
		assert.Empty(t, h.calls.Entries())
		assert.True(t, h.opener.Opened()[0].Closed())
	})
}

func TestReentrantCallsAreRefused(t *testing.T) {
	h := newHarness(t)
	var r *Reloader[NoHost]
	var reloadErr, closeErr error
	var nested abi.ShouldQuit = abi.Yes
	tb := h.table("v1", 8)
	tb.OnUpdate = func([]byte) {
		reloadErr = r.ReloadNow()
		closeErr = r.Close()
		nested = r.Update()
	}
	r = h.start(t, tb)
	r.Update()

	assert.True(t, IsBusy(reloadErr))
	assert.True(t, IsBusy(closeErr))
	assert.Equal(t, abi.No, nested)
	assert.Equal(t, StateLoaded, r.State())
	assert.Equal(t, 1, h.calls.Count("update"))
}

func TestClose_DeinitOnceAndIdempotent(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, h.calls.Count("deinit"))
	assert.Equal(t, StateClosed, r.State())
	assert.True(t, h.src.Closed())
	assert.True(t, h.opener.Opened()[0].Closed())

	assert.ErrorIs(t, r.Reload(), ErrClosed)
	assert.ErrorIs(t, r.ReloadNow(), ErrClosed)
	assert.Equal(t, abi.No, r.Update())
}

func TestClose_UnloadedSkipsDeinit(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8), &loader.Error{Kind: loader.KindSymbol, Path: h.path, Msg: "undefined symbol"})
	err := r.ReloadNow()
	assert.True(t, IsSymbol(err))

	require.NoError(t, r.Close())
	assert.Zero(t, h.calls.Count("deinit"))
	assert.True(t, h.src.Closed())
}

func TestEventsAndStats(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, h.table("v1", 8), h.table("v2", 16))
	r.Update()
	r.Update()
	h.src.Emit(h.path, watch.Write)
	require.NoError(t, r.Reload())
	require.NoError(t, r.Close())

	assert.Equal(t, []string{
		EventInit, EventWatchMatch, EventReloadStart, EventUnload, EventReloadDone, EventDeinit,
	}, h.pub.Names())
	evts := h.pub.Events()
	cycle := evts[2].CycleID
	assert.NotEmpty(t, cycle)
	assert.Equal(t, cycle, evts[3].CycleID)
	assert.Equal(t, cycle, evts[4].CycleID)
	for _, e := range evts {
		assert.Equal(t, h.path, e.Path)
	}

	st := r.Stats()
	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, uint64(2), st.Updates)
	assert.Equal(t, uint64(1), st.Reloads)
	assert.Equal(t, uint64(2), st.Generation)
	assert.Equal(t, 16, st.StateBytes)
	assert.False(t, st.LoadedAt.IsZero())
	assert.False(t, st.LastReloadAt.IsZero())
}

func TestNewWithConfig_DefaultWatchUsesBuffer(t *testing.T) {
	h := newHarness(t)
	h.opener.Push(h.table("v1", 8))
	cfg := h.config()
	cfg.Watch = nil
	cfg.WatchBuffer = 2
	r, err := NewWithConfig(cfg, NoHost{})
	require.NoError(t, err)
	defer r.Close()

	m, ok := r.watcher.(*watch.Monitor)
	require.True(t, ok, "watcher is %T", r.watcher)
	assert.Equal(t, 2, cap(m.Events()))
}
