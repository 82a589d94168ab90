package fsstorage

import (
	"errors"
	"syscall"
)

// isNotEmpty reports whether err is the platform's "directory not
// empty" errno, so Delete can translate os.Remove's generic
// *PathError into btdterr.ErrDirectoryNotEmpty.
func isNotEmpty(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ENOTEMPTY
	}
	return false
}
