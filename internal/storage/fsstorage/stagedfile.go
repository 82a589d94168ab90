package fsstorage

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgosmann/btdt/internal/b32enc"
)

// tmpCreateAttempts bounds the retry loop when creating a temp file:
// the sweeper may delete a just-created temp file in the narrow
// window before this writer manages to flock it.
const tmpCreateAttempts = 5

// suffixBytes is the 4-byte random draw encoded with btdt's 5-bit
// alphabet, producing a 7-character suffix.
const suffixBytes = 4

// stagedFile is the filesystem-storage write primitive: a write goes
// to a sibling "<target>.tmp.<7 chars>" file, created with
// O_CREAT|O_EXCL and held under an exclusive advisory lock for the
// writer's lifetime. Close is the only path that publishes the write,
// by renaming the temp file onto target; an abandoned stagedFile
// (never Closed) simply leaves the temp file for clean_leftover_tmp_files
// to reap — unlike a historical version of btdt, a drop never
// publishes a partially written file.
type stagedFile struct {
	f      *os.File
	target string
	closed bool
}

func tmpSuffix() (string, error) {
	var b [suffixBytes]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", err
	}
	return b32enc.Encode(b[:]), nil
}

func isLeftoverTmpName(name string) bool {
	i := strings.LastIndex(name, ".tmp.")
	if i < 0 {
		return false
	}
	suffix := name[i+len(".tmp."):]
	return len(suffix) == 7
}

// newStagedFile creates the temp file backing a staged write to
// target. Parent directories of target must already exist.
func newStagedFile(target string) (*stagedFile, error) {
	var lastErr error
	for attempt := 0; attempt < tmpCreateAttempts; attempt++ {
		suffix, err := tmpSuffix()
		if err != nil {
			return nil, err
		}
		tmpPath := target + ".tmp." + suffix
		f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err != nil {
			lastErr = err
			continue
		}
		ok, err := flockExclusive(f)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		if !ok {
			// Lost a race with another writer picking the same
			// suffix (astronomically unlikely) or, more plausibly in
			// tests, a sweeper that relocked it first. Either way,
			// back off and try a fresh suffix.
			f.Close()
			lastErr = fmt.Errorf("could not lock freshly created temp file %s", tmpPath)
			continue
		}
		return &stagedFile{f: f, target: target}, nil
	}
	return nil, fmt.Errorf("creating staged file for %s: %w", target, lastErr)
}

func (s *stagedFile) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Close publishes the staged write by renaming the temp file onto the
// target path. This is POSIX-atomic within a filesystem: a concurrent
// reader of target either sees the old contents or the new ones in
// full, never a mix.
func (s *stagedFile) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	tmpPath := s.f.Name()
	syncErr := s.f.Sync()
	closeErr := s.f.Close()
	unlockErr := funlock(s.f)
	_ = unlockErr // lock is released implicitly on close on most platforms; this is best-effort
	if syncErr != nil {
		os.Remove(tmpPath)
		return syncErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}
	if err := os.Rename(tmpPath, s.target); err != nil {
		return fmt.Errorf("publishing %s: %w", s.target, err)
	}
	return nil
}

// cleanLeftoverTmpFiles recursively scans root for files matching
// "*.tmp.<7 chars>", tries to take the same exclusive lock the staged
// writer holds, and deletes only the ones it can lock — guaranteeing
// that a live writer is never disturbed.
func cleanLeftoverTmpFiles(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !isLeftoverTmpName(d.Name()) {
			return nil
		}
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		defer f.Close()
		ok, err := flockExclusive(f)
		if err != nil {
			return err
		}
		if !ok {
			// A writer currently holds this temp file; leave it alone.
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}
