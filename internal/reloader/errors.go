package reloader

import (
	"errors"

	"livereload/internal/abi"
	"livereload/internal/loader"
)

// watchError signals that the artifact directory could not be observed.
type watchError struct {
	dir string
	err error
}

func (e watchError) Error() string { return "watch " + e.dir + ": " + e.err.Error() }
func (e watchError) Unwrap() error { return e.err }

// IsWatch reports whether err comes from setting up the filesystem watch.
func IsWatch(err error) bool {
	var we watchError
	return errors.As(err, &we)
}

// busyError signals a concurrent or reentrant call into a Reloader.
type busyError struct{ op string }

func (e busyError) Error() string { return "reloader busy: concurrent " + e.op }

// IsBusy reports whether err was caused by a second driver.
func IsBusy(err error) bool {
	var be busyError
	return errors.As(err, &be)
}

// configError signals an invalid Config.
type configError struct{ msg string }

func (e configError) Error() string { return "reloader config: " + e.msg }

// IsConfig reports whether err was caused by an invalid Config.
func IsConfig(err error) bool {
	var ce configError
	return errors.As(err, &ce)
}

// ErrClosed is returned by operations on a closed Reloader.
var ErrClosed = errors.New("reloader closed")

// IsIO reports a missing or unreadable artifact.
func IsIO(err error) bool { return loader.KindOf(err) == loader.KindIO }

// IsOpen reports a file the platform loader rejected.
func IsOpen(err error) bool { return loader.KindOf(err) == loader.KindOpen }

// IsSymbol reports an artifact without the exported table.
func IsSymbol(err error) bool { return loader.KindOf(err) == loader.KindSymbol }

// IsIncompatibleABI reports a table with the wrong magic, version or null entries.
func IsIncompatibleABI(err error) bool { return loader.KindOf(err) == loader.KindABI }

// IsUnavailable reports a build without dynamic loading support.
func IsUnavailable(err error) bool { return loader.KindOf(err) == loader.KindUnavailable }

// IsMismatchedHost reports disagreement between the host layout and the one
// the artifact was generated against.
func IsMismatchedHost(err error) bool {
	var me *abi.HostMismatchError
	return errors.As(err, &me)
}
