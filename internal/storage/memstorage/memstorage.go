// Package memstorage implements storage.Storage as an in-memory tree
// of directories and byte-slice files. It is the reference
// implementation btdt's own tests build the cache and server layers
// against, since it needs no filesystem fixtures and no cleanup
// between runs.
package memstorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jgosmann/btdt/internal/btdterr"
	"github.com/jgosmann/btdt/internal/storage"
)

// Storage is an in-memory storage.Storage. The zero value is ready to
// use.
type Storage struct {
	mu   sync.Mutex
	root *dirNode
}

var _ storage.Storage = (*Storage)(nil)

// New returns an empty in-memory storage.
func New() *Storage {
	return &Storage{root: newDir()}
}

type dirNode struct {
	children map[string]*entryNode // case-sensitive
}

func newDir() *dirNode {
	return &dirNode{children: make(map[string]*entryNode)}
}

type entryNode struct {
	dir  *dirNode // non-nil if this entry is a directory
	file *fileNode
}

// fileNode holds the published contents of a file behind a read/write
// lock. A published fileNode's data is never modified: Put's Close
// publishes by replacing the whole entry under the storage lock.
type fileNode struct {
	mu   sync.RWMutex
	data []byte
}

func (s *Storage) walkParts(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, p := range parts {
		if p == "" || p == "." {
			return nil, fmt.Errorf("%w: empty path component in %q", btdterr.ErrInvalidInput, path)
		}
		if p == ".." {
			return nil, fmt.Errorf("%w: path %q escapes storage root", btdterr.ErrInvalidInput, path)
		}
	}
	return parts, nil
}

// lookupDir walks to the directory named by parts, optionally
// creating missing intermediate directories. Caller holds s.mu.
func (s *Storage) lookupDir(parts []string, create bool) (*dirNode, error) {
	if s.root == nil {
		s.root = newDir()
	}
	cur := s.root
	for _, p := range parts {
		child, ok := cur.children[p]
		if !ok {
			if !create {
				return nil, nil
			}
			d := newDir()
			cur.children[p] = &entryNode{dir: d}
			cur = d
			continue
		}
		if child.dir == nil {
			return nil, btdterr.ErrNotADirectory
		}
		cur = child.dir
	}
	return cur, nil
}

// Get implements storage.Storage.
func (s *Storage) Get(_ context.Context, path string) (io.ReadCloser, int64, error) {
	parts, err := s.walkParts(path)
	if err != nil {
		return nil, 0, err
	}
	if len(parts) == 0 {
		return nil, 0, btdterr.Path("get", path, btdterr.ErrIsADirectory)
	}
	s.mu.Lock()
	dir, err := s.lookupDir(parts[:len(parts)-1], false)
	if err != nil {
		s.mu.Unlock()
		return nil, 0, btdterr.Path("get", path, err)
	}
	var fn *fileNode
	if dir != nil {
		if e, ok := dir.children[parts[len(parts)-1]]; ok {
			if e.dir != nil {
				s.mu.Unlock()
				return nil, 0, btdterr.Path("get", path, btdterr.ErrIsADirectory)
			}
			fn = e.file
		}
	}
	s.mu.Unlock()
	if fn == nil {
		return nil, 0, btdterr.Path("get", path, btdterr.ErrNotFound)
	}
	fn.mu.RLock()
	data := fn.data
	fn.mu.RUnlock()
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Put implements storage.Storage.
func (s *Storage) Put(_ context.Context, path string) (storage.WriteCommitter, error) {
	parts, err := s.walkParts(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, btdterr.Path("put", path, btdterr.ErrIsADirectory)
	}
	return &memWriter{s: s, parts: parts}, nil
}

type memWriter struct {
	s      *Storage
	parts  []string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Close publishes the buffered write by swapping it into the parent
// directory's child map under the storage lock: exactly one of any
// concurrent Put/Close pair to the same path wins, and no reader ever
// observes a partial or interleaved write.
func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	published := append([]byte(nil), w.buf.Bytes()...)
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	dir, err := w.s.lookupDir(w.parts[:len(w.parts)-1], true)
	if err != nil {
		return err
	}
	dir.children[w.parts[len(w.parts)-1]] = &entryNode{file: &fileNode{data: published}}
	return nil
}

// Delete implements storage.Storage.
func (s *Storage) Delete(_ context.Context, path string) error {
	parts, err := s.walkParts(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.lookupDir(parts[:len(parts)-1], false)
	if err != nil {
		return btdterr.Path("delete", path, err)
	}
	if dir == nil {
		return nil
	}
	name := parts[len(parts)-1]
	e, ok := dir.children[name]
	if !ok {
		return nil
	}
	if e.dir != nil && len(e.dir.children) > 0 {
		return btdterr.Path("delete", path, btdterr.ErrDirectoryNotEmpty)
	}
	delete(dir.children, name)
	return nil
}

// Exists implements storage.Storage.
func (s *Storage) Exists(_ context.Context, path string) (bool, error) {
	parts, err := s.walkParts(path)
	if err != nil {
		return false, err
	}
	if len(parts) == 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.lookupDir(parts[:len(parts)-1], false)
	if err != nil || dir == nil {
		return false, nil
	}
	e, ok := dir.children[parts[len(parts)-1]]
	return ok && e.dir == nil, nil
}

// List implements storage.Storage.
func (s *Storage) List(_ context.Context, path string) ([]storage.Entry, error) {
	parts, err := s.walkParts(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.lookupDir(parts, false)
	if err != nil {
		return nil, btdterr.Path("list", path, err)
	}
	if dir == nil {
		return nil, nil
	}
	out := make([]storage.Entry, 0, len(dir.children))
	for name, e := range dir.children {
		if e.dir != nil {
			out = append(out, storage.Entry{Name: name, Kind: storage.KindDir})
			continue
		}
		e.file.mu.RLock()
		size := int64(len(e.file.data))
		e.file.mu.RUnlock()
		out = append(out, storage.Entry{Name: name, Kind: storage.KindFile, Size: size})
	}
	return out, nil
}
