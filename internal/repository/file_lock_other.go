//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package repository

// lockFile is a no-op where flock is unavailable; only the in-process mutex applies there.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
