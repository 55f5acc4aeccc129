// Package watch reports debounced filesystem changes in one directory.
//
// Build tools often replace an artifact by deleting and recreating it, which
// silently kills a watch placed on the file itself, so callers watch the
// parent directory and filter events by path.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of writes a linker produces.
const DefaultDebounce = time.Second

const defaultBuffer = 256

// Op is a bitmask of the operations seen for a path during one debounce window.
type Op uint8

const (
	Create Op = 1 << iota
	Write
	Remove
	Rename
	Chmod
)

// Has reports whether o includes all bits of x.
func (o Op) Has(x Op) bool { return o&x == x }

// Changed reports whether the path now holds new content.
func (o Op) Changed() bool { return o&(Create|Write) != 0 }

func (o Op) String() string {
	names := []string{"create", "write", "remove", "rename", "chmod"}
	s := ""
	for i, n := range names {
		if o&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n
	}
	if s == "" {
		return "none"
	}
	return s
}

func fromFSNotify(op fsnotify.Op) Op {
	var o Op
	if op.Has(fsnotify.Create) {
		o |= Create
	}
	if op.Has(fsnotify.Write) {
		o |= Write
	}
	if op.Has(fsnotify.Remove) {
		o |= Remove
	}
	if op.Has(fsnotify.Rename) {
		o |= Rename
	}
	if op.Has(fsnotify.Chmod) {
		o |= Chmod
	}
	return o
}

// Event is one debounced notification.
type Event struct {
	Path string
	Op   Op
}

// Source is what the reloader consumes; Monitor is the production source.
type Source interface {
	Events() <-chan Event
	Close() error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets the quiet period before a path's events are delivered.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		if d >= 0 {
			m.debounce = d
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Monitor) { m.logger = l } }

// WithBuffer sets the capacity of the delivery channel. Events that do not
// fit are coalesced per path and handed over by Drain.
func WithBuffer(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.buffer = n
		}
	}
}

type pending struct {
	op    Op
	due   time.Time
	timer *time.Timer
}

// Monitor watches a single directory non-recursively.
type Monitor struct {
	dir      string
	debounce time.Duration
	buffer   int
	logger   zerolog.Logger

	fw  *fsnotify.Watcher
	out chan Event

	mu       sync.Mutex
	pending  map[string]*pending
	overflow map[string]Op // delivered events that did not fit in out
	order    []string      // overflow paths, first spill first
	closed   bool

	wg sync.WaitGroup
}

// New starts watching dir. It fails if the directory cannot be watched.
func New(dir string, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		dir:      filepath.Clean(dir),
		debounce: DefaultDebounce,
		buffer:   defaultBuffer,
		logger:   zerolog.Nop(),
		pending:  make(map[string]*pending),
		overflow: make(map[string]Op),
	}
	for _, o := range opts {
		o(m)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(m.dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", m.dir, err)
	}
	m.fw = fw
	m.out = make(chan Event, m.buffer)
	m.wg.Add(1)
	go m.loop()
	m.logger.Debug().Str("dir", m.dir).Dur("debounce", m.debounce).Msg("watch started")
	return m, nil
}

// Events delivers debounced events. The channel is closed by Close.
func (m *Monitor) Events() <-chan Event { return m.out }

// Drain returns every delivered event without blocking: the channel contents
// first, then anything that spilled over while the channel was full.
func (m *Monitor) Drain() []Event {
	out := drainChan(m.out)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, path := range m.order {
		out = append(out, Event{Path: path, Op: m.overflow[path]})
		delete(m.overflow, path)
	}
	m.order = m.order[:0]
	return out
}

// Overflowed reports how many paths are waiting for Drain because the
// channel was full.
func (m *Monitor) Overflowed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Close stops the watcher and all pending timers. It is safe to call twice.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for path, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, path)
	}
	m.mu.Unlock()

	err := m.fw.Close()
	m.wg.Wait()

	m.mu.Lock()
	close(m.out)
	m.mu.Unlock()
	return err
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-m.fw.Events:
			if !ok {
				return
			}
			m.handle(ev)
		case err, ok := <-m.fw.Errors:
			if !ok {
				return
			}
			// best effort: a lost event just means no reload this round
			m.logger.Debug().Err(err).Str("dir", m.dir).Msg("watch error")
		}
	}
}

func (m *Monitor) handle(ev fsnotify.Event) {
	op := fromFSNotify(ev.Op)
	if op == 0 {
		return
	}
	path := filepath.Clean(ev.Name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if p, ok := m.pending[path]; ok {
		p.op |= op
		p.due = time.Now().Add(m.debounce)
		p.timer.Reset(m.debounce)
		return
	}
	m.pending[path] = &pending{
		op:    op,
		due:   time.Now().Add(m.debounce),
		timer: time.AfterFunc(m.debounce, func() { m.flush(path) }),
	}
}

func (m *Monitor) flush(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[path]
	if !ok || m.closed {
		return
	}
	if time.Now().Before(p.due) {
		// superseded by a Reset; the re-armed timer will flush
		return
	}
	delete(m.pending, path)
	if op, ok := m.overflow[path]; ok {
		m.overflow[path] = op | p.op
		return
	}
	if len(m.order) == 0 {
		select {
		case m.out <- Event{Path: path, Op: p.op}:
			return
		default:
		}
	}
	// keep later events behind the spilled ones
	m.overflow[path] = p.op
	m.order = append(m.order, path)
	m.logger.Debug().Str("path", path).Int("spilled", len(m.order)).Msg("watch channel full, coalescing")
}

// Drain empties any Source without blocking. Sources with their own Drain
// (such as Monitor) are asked directly so nothing they hold back is missed.
func Drain(s Source) []Event {
	if d, ok := s.(interface{ Drain() []Event }); ok {
		return d.Drain()
	}
	return drainChan(s.Events())
}

func drainChan(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
