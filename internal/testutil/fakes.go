package testutil

import (
	"fmt"
	"sync"
	"unsafe"

	"livereload/internal/abi"
	"livereload/internal/loader"
	"livereload/internal/watch"
)

// Call is one recorded lifecycle invocation.
type Call struct {
	Version string // FakeTable.Version of the table that was called
	Entry   string // size, init, reload, update, unload, deinit
	Host    unsafe.Pointer
	State   unsafe.Pointer
}

// CallLog records calls across every table of a test, in order.
type CallLog struct {
	mu    sync.Mutex
	calls []Call
}

func (l *CallLog) add(c Call) {
	l.mu.Lock()
	l.calls = append(l.calls, c)
	l.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Entries returns "version:entry" strings, skipping size queries.
func (l *CallLog) Entries() []string {
	var out []string
	for _, c := range l.Calls() {
		if c.Entry == "size" {
			continue
		}
		out = append(out, c.Version+":"+c.Entry)
	}
	return out
}

// Count returns how many times entry was called on any table.
func (l *CallLog) Count(entry string) int {
	n := 0
	for _, c := range l.Calls() {
		if c.Entry == entry {
			n++
		}
	}
	return n
}

// StateFunc mutates the state bytes handed to a lifecycle entry.
type StateFunc func(state []byte)

// FakeTable is an in-memory abi.Table.
type FakeTable struct {
	Version   string
	Log       *CallLog
	StateSize uintptr
	HostSig   uint64
	Hdr       *abi.Header // overrides the valid default header when set

	OnInit, OnReload, OnUnload, OnDeinit, OnUpdate StateFunc
	Quit                                           abi.ShouldQuit
}

func (t *FakeTable) Header() abi.Header {
	if t.Hdr != nil {
		return *t.Hdr
	}
	return abi.Header{Magic: abi.Magic, Version: abi.Version, HostSignature: t.HostSig}
}

func (t *FakeTable) Size() uintptr {
	t.record("size", nil, nil)
	return t.StateSize
}

func (t *FakeTable) Init(host, state unsafe.Pointer)   { t.call("init", host, state, t.OnInit) }
func (t *FakeTable) Reload(host, state unsafe.Pointer) { t.call("reload", host, state, t.OnReload) }
func (t *FakeTable) Unload(host, state unsafe.Pointer) { t.call("unload", host, state, t.OnUnload) }
func (t *FakeTable) Deinit(host, state unsafe.Pointer) { t.call("deinit", host, state, t.OnDeinit) }

func (t *FakeTable) Update(host, state unsafe.Pointer) abi.ShouldQuit {
	t.call("update", host, state, t.OnUpdate)
	return t.Quit
}

func (t *FakeTable) call(entry string, host, state unsafe.Pointer, fn StateFunc) {
	t.record(entry, host, state)
	if fn != nil {
		fn(StateBytes(state, t.StateSize))
	}
}

func (t *FakeTable) record(entry string, host, state unsafe.Pointer) {
	if t.Log != nil {
		t.Log.add(Call{Version: t.Version, Entry: entry, Host: host, State: state})
	}
}

// StateBytes views n bytes at p, as artifact code would.
func StateBytes(p unsafe.Pointer, n uintptr) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// FakeLibrary wraps a FakeTable.
type FakeLibrary struct {
	path   string
	table  *FakeTable
	mu     sync.Mutex
	closed bool
}

func (l *FakeLibrary) Path() string     { return l.path }
func (l *FakeLibrary) Table() abi.Table { return l.table }

func (l *FakeLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Closed reports whether Close was called.
func (l *FakeLibrary) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// FakeOpener hands out queued tables (or errors) in order. When the queue is
// empty the last table is reused.
type FakeOpener struct {
	mu     sync.Mutex
	queue  []any // *FakeTable or error
	last   *FakeTable
	opened []*FakeLibrary
}

// Push queues the next Open result: a *FakeTable or an error.
func (o *FakeOpener) Push(results ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, results...)
}

// Open implements loader.Opener.
func (o *FakeOpener) Open(path string) (loader.Library, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var next any
	if len(o.queue) > 0 {
		next, o.queue = o.queue[0], o.queue[1:]
	} else if o.last != nil {
		next = o.last
	} else {
		return nil, &loader.Error{Kind: loader.KindIO, Path: path, Msg: "nothing queued"}
	}
	switch v := next.(type) {
	case error:
		return nil, v
	case *FakeTable:
		o.last = v
		lib := &FakeLibrary{path: path, table: v}
		o.opened = append(o.opened, lib)
		return lib, nil
	default:
		return nil, fmt.Errorf("testutil: bad queued value %T", next)
	}
}

// Opened returns every library handed out so far.
func (o *FakeOpener) Opened() []*FakeLibrary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*FakeLibrary(nil), o.opened...)
}

// FakeSource is a watch.Source fed by the test.
type FakeSource struct {
	Dir    string
	ch     chan watch.Event
	mu     sync.Mutex
	closed bool
}

// NewFakeSource returns a source with a generous buffer.
func NewFakeSource(dir string) *FakeSource {
	return &FakeSource{Dir: dir, ch: make(chan watch.Event, 64)}
}

// Emit queues an event as if the debounce window had just elapsed.
func (s *FakeSource) Emit(path string, op watch.Op) {
	s.ch <- watch.Event{Path: path, Op: op}
}

func (s *FakeSource) Events() <-chan watch.Event { return s.ch }

func (s *FakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
