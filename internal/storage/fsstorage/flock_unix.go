//go:build linux || darwin
// +build linux darwin

package fsstorage

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes a non-blocking exclusive advisory lock on f.
// It returns false (no error) if the lock is already held elsewhere,
// which the staged-file writer and the temp-file sweeper both use to
// tell a live writer apart from an abandoned temp file.
func flockExclusive(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, err
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
