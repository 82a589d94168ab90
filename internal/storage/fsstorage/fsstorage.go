// Package fsstorage implements storage.Storage over a real filesystem
// directory, suitable for sharing via network filesystem mounts or CI
// workspace volumes across multiple concurrent processes.
package fsstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jgosmann/btdt/internal/btdterr"
	"github.com/jgosmann/btdt/internal/storage"
)

// Storage is a storage.Storage backed by a directory tree. The zero
// value is not usable; construct with New.
type Storage struct {
	root string
}

var _ storage.Storage = (*Storage)(nil)

// New opens (and, if necessary, creates) dir as a storage root.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("opening filesystem storage at %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Storage{root: abs}, nil
}

// Root returns the absolute path of the storage root.
func (s *Storage) Root() string { return s.root }

func (s *Storage) resolve(path string) (string, error) {
	cleaned, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func cleanPath(path string) (string, error) {
	// Leading/trailing slashes are trimmed and ".." components are
	// rejected. Unlike storage.clean, empty and "." components are not
	// rejected: empty ones are skipped and "." is resolved by the
	// OS-native join in resolve.
	if path == "" {
		return "", nil
	}
	cleaned := filepath.ToSlash(path)
	for cleaned != "" && cleaned[0] == '/' {
		cleaned = cleaned[1:]
	}
	for cleaned != "" && cleaned[len(cleaned)-1] == '/' {
		cleaned = cleaned[:len(cleaned)-1]
	}
	parts := splitSlash(cleaned)
	for _, p := range parts {
		if p == ".." {
			return "", fmt.Errorf("%w: path %q escapes storage root", btdterr.ErrInvalidInput, path)
		}
	}
	return cleaned, nil
}

func splitSlash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Get implements storage.Storage.
func (s *Storage) Get(_ context.Context, path string) (io.ReadCloser, int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, btdterr.Path("get", path, btdterr.ErrNotFound)
		}
		return nil, 0, btdterr.Path("get", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, btdterr.Path("get", path, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, 0, btdterr.Path("get", path, btdterr.ErrIsADirectory)
	}
	return f, fi.Size(), nil
}

// Put implements storage.Storage.
func (s *Storage) Put(_ context.Context, path string) (storage.WriteCommitter, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, btdterr.Path("put", path, err)
	}
	sf, err := newStagedFile(full)
	if err != nil {
		return nil, btdterr.Path("put", path, err)
	}
	return sf, nil
}

// Delete implements storage.Storage.
func (s *Storage) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && isNotEmpty(pathErr.Err) {
		return btdterr.Path("delete", path, btdterr.ErrDirectoryNotEmpty)
	}
	return btdterr.Path("delete", path, err)
}

// Exists implements storage.Storage.
func (s *Storage) Exists(_ context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, btdterr.Path("exists", path, err)
	}
	return !fi.IsDir(), nil
}

// List implements storage.Storage.
func (s *Storage) List(_ context.Context, path string) ([]storage.Entry, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, btdterr.Path("list", path, err)
	}
	out := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		kind := storage.KindFile
		var size int64
		if e.IsDir() {
			kind = storage.KindDir
		} else {
			if fi, err := e.Info(); err == nil {
				size = fi.Size()
			}
		}
		out = append(out, storage.Entry{Name: e.Name(), Kind: kind, Size: size})
	}
	return out, nil
}

// CleanLeftoverTmpFiles recursively scans the storage root for
// abandoned staged-write temp files and deletes the ones it can lock
// without disturbing any in-flight writer. See spec §4.1.
func (s *Storage) CleanLeftoverTmpFiles() error {
	return cleanLeftoverTmpFiles(s.root)
}
