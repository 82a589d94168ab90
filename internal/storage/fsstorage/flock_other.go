//go:build !linux && !darwin
// +build !linux,!darwin

package fsstorage

import "os"

// flockExclusive is a best-effort no-op on platforms without an
// advisory-lock syscall wired up. Single-process use (e.g. Windows CI
// runners using a local, non-shared cache directory) remains correct;
// true multi-process coordination on these platforms is out of scope.
func flockExclusive(f *os.File) (bool, error) {
	return true, nil
}

func funlock(f *os.File) error {
	return nil
}
