// Package reloader owns a hot-swappable artifact and the state it works on.
// It is structured into small files by concern:
//
//   - reloader.go: Reloader type, constructors, Update/Reload/ReloadNow/Close.
//   - config.go: Config and package defaults; NewWithConfig applies defaults.
//   - types.go: lifecycle State, NoHost, Stats.
//   - errors.go: error helpers (IsIO, IsSymbol, IsWatch, IsMismatchedHost, ...).
//   - events.go, eventpub_memory.go: lifecycle events and an in-memory sink.
//   - metrics.go: Prometheus collectors.
//
// Lifecycle entries are always called in this order over a Reloader's life:
// init once, then any number of update calls interleaved with reload cycles
// (unload on the outgoing table, reload on the incoming one), then deinit once
// if an artifact is still loaded. A failed reload leaves nothing loaded; the
// outgoing unload has already run and Update becomes a silent no-op until a
// later reload succeeds.
//
// A Reloader has a single driver. It takes no locks around lifecycle calls;
// concurrent or reentrant calls are detected and refused (IsBusy) rather than
// serialized.
package reloader
