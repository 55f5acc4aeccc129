package reloader

import (
	"time"

	"github.com/rs/zerolog"

	"livereload/internal/loader"
	"livereload/internal/watch"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultDebounce = watch.DefaultDebounce
)

// WatchFunc starts a watch source on dir.
type WatchFunc func(dir string, debounce time.Duration, logger zerolog.Logger) (watch.Source, error)

// Config encapsulates all tunables for Reloader construction.
type Config struct {
	// Path to the artifact. Canonicalized once at construction.
	Path string
	// Debounce window for filesystem events (default 1s).
	Debounce time.Duration
	// WatchBuffer is the capacity of the watch delivery channel; zero keeps
	// the watch package default.
	WatchBuffer int
	// RetryUnloaded makes Reload attempt a load whenever nothing is loaded,
	// even without a new watch event.
	RetryUnloaded bool
	// HostSignature is the host layout signature the artifact must declare.
	// When zero and the host value implements Signer, its signature is used.
	HostSignature uint64

	// Collaborators; nil selects the production implementation.
	Opener    loader.Opener
	Watch     WatchFunc
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// Signer is implemented by host values that know their C layout signature.
type Signer interface {
	HostSignature() uint64
}

func defaultWatch(buffer int) WatchFunc {
	return func(dir string, debounce time.Duration, logger zerolog.Logger) (watch.Source, error) {
		return watch.New(dir, watch.WithDebounce(debounce), watch.WithLogger(logger), watch.WithBuffer(buffer))
	}
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}
	if c.Opener == nil {
		c.Opener = loader.DL{}
	}
	if c.Watch == nil {
		c.Watch = defaultWatch(c.WatchBuffer)
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}
