// Package hostcap provides the standard host value handed to artifacts. Its
// layout matches abi.StandardHost; the log callback writes through zerolog.
package hostcap

import (
	"sync/atomic"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"livereload/internal/abi"
)

// Version is written into Host.Version.
const Version uint32 = 1

// Host mirrors lr_host. It holds no Go pointers, so its address may be passed
// to C for the duration of a call.
type Host struct {
	Version  uint32
	reserved uint32
	Log      unsafe.Pointer // void (*)(int32_t level, const char *msg); nil without cgo
}

// New returns a host whose Log callback is wired when cgo is available.
func New() Host {
	return Host{Version: Version, Log: logCallback()}
}

// HostSignature implements reloader.Signer.
func (Host) HostSignature() uint64 { return abi.StandardHost.Signature() }

var logger atomic.Pointer[zerolog.Logger]

// SetLogger routes artifact log messages to l.
func SetLogger(l zerolog.Logger) {
	l = l.With().Str("component", "artifact").Logger()
	logger.Store(&l)
}

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "livereload",
		Subsystem: "host",
		Name:      "log_messages_total",
		Help:      "Messages logged by artifacts through the host",
	},
	[]string{"level"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}

func emit(level int32, msg string) {
	l := logger.Load()
	if l == nil {
		nop := zerolog.Nop()
		l = &nop
	}
	var ev *zerolog.Event
	name := "info"
	switch level {
	case abi.LogDebug:
		ev, name = l.Debug(), "debug"
	case abi.LogInfo:
		ev = l.Info()
	case abi.LogWarn:
		ev, name = l.Warn(), "warn"
	case abi.LogError:
		ev, name = l.Error(), "error"
	default:
		ev = l.Info().Int32("artifact_level", level)
	}
	messagesTotal.WithLabelValues(name).Inc()
	ev.Msg(msg)
}
