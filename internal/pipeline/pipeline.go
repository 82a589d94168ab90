// Package pipeline is a thin archive/tar wrapper over a cache.Cache:
// pack a directory tree into a cache entry, and restore one back onto
// disk. It exists so CI steps can cache arbitrary build output
// directories instead of individual files.
package pipeline

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jgosmann/btdt/internal/cache"
)

// Pack walks root and streams its contents as a tar archive directly
// into c.Set(keys), without buffering the whole archive in memory.
// Symlinks are stored as symlinks (their target, not their contents)
// rather than followed, so a link into a directory outside root can't
// cause an unbounded or cyclic walk.
func Pack(ctx context.Context, c cache.Cache, keys []string, root string) error {
	writer, err := c.Set(ctx, keys)
	if err != nil {
		return fmt.Errorf("starting cache entry: %w", err)
	}
	tw := tar.NewWriter(writer)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() || link != "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})

	if walkErr != nil {
		writer.Close()
		return fmt.Errorf("packing %s: %w", root, walkErr)
	}
	if err := tw.Close(); err != nil {
		writer.Close()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("publishing cache entry: %w", err)
	}
	return nil
}

// Unpack looks keys up in c and, on a hit, extracts the tar archive
// into destRoot, recreating directories, regular files (with their
// original POSIX mode bits), and symlinks (with their original
// target). It returns the matched key and true on a hit, and "" and
// false with no error on a miss.
func Unpack(ctx context.Context, c cache.Cache, keys []string, destRoot string) (string, bool, error) {
	result, ok, err := c.Get(ctx, keys)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	defer result.Reader.Close()

	tr := tar.NewReader(result.Reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("reading archive for key %q: %w", result.MatchedKey, err)
		}
		target := filepath.Join(destRoot, filepath.FromSlash(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return "", false, err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", false, err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return "", false, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", false, err
			}
			if err := extractFile(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return "", false, err
			}
		default:
			// Device nodes, FIFOs, and the like are not meaningful
			// build output; skip their content silently.
		}
	}
	return result.MatchedKey, true, nil
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
