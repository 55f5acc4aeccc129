//go:build !cgo || !(linux || darwin || freebsd)

package loader

// DL is unavailable in this build: dynamic loading needs cgo on a platform
// with dlopen. Open still reports missing files as I/O errors.
type DL struct{}

func (DL) Open(path string) (Library, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	return nil, &Error{Kind: KindUnavailable, Path: path, Msg: "dynamic loading not built (requires cgo and dlopen)"}
}
