package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jgosmann/btdt/internal/blobid"
	"github.com/jgosmann/btdt/internal/btdterr"
	"github.com/jgosmann/btdt/internal/btlog"
	"github.com/jgosmann/btdt/internal/clock"
	"github.com/jgosmann/btdt/internal/meta"
	"github.com/jgosmann/btdt/internal/storage"
)

// Local maps cache keys to blobs via meta records on a storage.Storage.
// It is the Cache implementation used directly by the CLI against a
// filesystem or in-memory storage, and wrapped by the server to expose
// the same contract over HTTP.
type Local struct {
	Storage storage.Storage
	Clock   clock.Clock
	// Rand seeds new BlobIds; nil selects the production,
	// thread-local crypto source. Tests inject a seeded,
	// deterministic io.Reader for reproducible fixtures.
	Rand   io.Reader
	Logger btlog.Logger
}

var _ Cache = (*Local)(nil)

func (c *Local) clock() clock.Clock {
	if c.Clock == nil {
		return clock.System{}
	}
	return c.Clock
}

func (c *Local) logger() btlog.Logger {
	return btlog.OrNop(c.Logger)
}

// Get implements Cache. Per key, in order: a missing meta record falls
// through to the next key; a corrupt meta record is fatal for the
// whole call; a dangling blob reference (meta present, blob missing)
// falls through; any other I/O error is fatal.
func (c *Local) Get(ctx context.Context, keys []string) (GetResult, bool, error) {
	for _, key := range keys {
		path := meta.Path(key)
		rc, _, err := c.Storage.Get(ctx, path)
		if errors.Is(err, btdterr.ErrNotFound) {
			continue
		}
		if err != nil {
			return GetResult{}, false, fmt.Errorf("reading meta for key %q: %w", key, err)
		}
		buf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return GetResult{}, false, fmt.Errorf("reading meta for key %q: %w", key, err)
		}
		rec, err := meta.FromBytes(buf)
		if err != nil {
			return GetResult{}, false, fmt.Errorf("key %q: %w", key, err)
		}

		blobReader, sizeHint, err := c.Storage.Get(ctx, rec.BlobId.Path())
		if errors.Is(err, btdterr.ErrNotFound) {
			// Dangling meta: tolerated, try the next preference.
			continue
		}
		if err != nil {
			return GetResult{}, false, fmt.Errorf("reading blob for key %q: %w", key, err)
		}

		if err := c.touch(ctx, path, rec); err != nil {
			blobReader.Close()
			return GetResult{}, false, err
		}

		return GetResult{MatchedKey: key, Reader: blobReader, SizeHint: sizeHint}, true, nil
	}
	return GetResult{}, false, nil
}

// touch rewrites the meta record at path with the current time. This
// is a full staged write, exactly like Set's meta publication, so it
// shares the same atomicity guarantees.
func (c *Local) touch(ctx context.Context, path string, rec meta.Record) error {
	updated := rec.WithAccess(c.clock().Now())
	w, err := c.Storage.Put(ctx, path)
	if err != nil {
		return fmt.Errorf("updating last-access for %s: %w", path, err)
	}
	if _, err := w.Write(updated.Bytes()); err != nil {
		return fmt.Errorf("updating last-access for %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("updating last-access for %s: %w", path, err)
	}
	return nil
}

// Set implements Cache.
func (c *Local) Set(ctx context.Context, keys []string) (SetWriter, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: set requires at least one key", btdterr.ErrInvalidInput)
	}
	id, err := blobid.New(c.Rand)
	if err != nil {
		return nil, err
	}
	blobWriter, err := c.Storage.Put(ctx, id.Path())
	if err != nil {
		return nil, fmt.Errorf("staging blob %s: %w", id, err)
	}
	return &localSetWriter{
		ctx:    ctx,
		cache:  c,
		id:     id,
		keys:   keys,
		writer: blobWriter,
	}, nil
}

type localSetWriter struct {
	ctx    context.Context
	cache  *Local
	id     blobid.BlobId
	keys   []string
	writer storage.WriteCommitter
}

func (w *localSetWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

// Close finalizes the blob and, only if that succeeds, writes one meta
// record per key, in order. If meta publication fails partway
// through, blobs referenced only by not-yet-written keys are
// unreferenced and will be collected by the next eviction pass, since
// the blob itself was already published.
func (w *localSetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("publishing blob %s: %w", w.id, err)
	}
	rec := meta.New(w.id, w.cache.clock().Now())
	for _, key := range w.keys {
		mw, err := w.cache.Storage.Put(w.ctx, meta.Path(key))
		if err != nil {
			return fmt.Errorf("publishing meta for key %q: %w", key, err)
		}
		if _, err := mw.Write(rec.Bytes()); err != nil {
			return fmt.Errorf("publishing meta for key %q: %w", key, err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("publishing meta for key %q: %w", key, err)
		}
	}
	return nil
}
