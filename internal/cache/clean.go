package cache

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jgosmann/btdt/internal/blobid"
	"github.com/jgosmann/btdt/internal/meta"
	"github.com/jgosmann/btdt/internal/storage"
)

// blobAggregate tracks everything known about one blob while an
// eviction pass is deciding whether to keep it.
type blobAggregate struct {
	blobID       blobid.BlobId
	size         int64
	latestAccess time.Time
	keys         []string
}

// evictionHeap is a min-heap of blobAggregate ordered by latestAccess,
// so the least-recently-used blob always sits at index 0. It only
// needs to support push, pop, and "peek the minimum", unlike a
// general-purpose heap package, so it is kept as a plain slice type
// with the two sift operations inlined rather than pulled in from
// somewhere generic.
type evictionHeap []*blobAggregate

func (h *evictionHeap) push(agg *blobAggregate) {
	*h = append(*h, agg)
	h.siftUp(len(*h) - 1)
}

func (h *evictionHeap) pop() *blobAggregate {
	x := *h
	oldest := x[0]
	x[0], *h = x[len(x)-1], x[:len(x)-1]
	h.siftDown(0)
	return oldest
}

func (h evictionHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h[i].latestAccess.Before(h[parent].latestAccess) {
			break
		}
		h[i], h[parent] = h[parent], h[i]
		i = parent
	}
}

func (h evictionHeap) siftDown(i int) {
	for {
		left, right := 2*i+1, 2*i+2
		if left >= len(h) {
			break
		}
		smallest := left
		if right < len(h) && h[right].latestAccess.Before(h[left].latestAccess) {
			smallest = right
		}
		if !h[smallest].latestAccess.Before(h[i].latestAccess) {
			break
		}
		h[i], h[smallest] = h[smallest], h[i]
		i = smallest
	}
}

// Clean implements Cache: enumerate every blob and every meta record
// once, then evict least-recently-used blobs until both the age and
// size bounds are satisfied. A call with both bounds unset is a no-op.
func (c *Local) Clean(ctx context.Context, opts CleanOptions) error {
	if opts.IsZero() {
		return nil
	}

	blobSizes, err := c.scanBlobSizes(ctx)
	if err != nil {
		return fmt.Errorf("enumerating blobs: %w", err)
	}
	aggregates, err := c.scanMetaAggregates(ctx, blobSizes)
	if err != nil {
		return fmt.Errorf("enumerating meta records: %w", err)
	}

	var total int64
	h := make(evictionHeap, 0, len(aggregates))
	for _, agg := range aggregates {
		total += agg.size
		h.push(agg)
	}

	cutoff := time.Time{} // the zero Time sorts before everything, i.e. "no age bound"
	if opts.MaxUnusedAge > 0 {
		cutoff = c.clock().Now().Add(-opts.MaxUnusedAge)
	}
	maxSize := uint64(math.MaxUint64)
	if opts.MaxTotalSize > 0 {
		maxSize = opts.MaxTotalSize
	}

	for len(h) > 0 {
		oldest := h[0]
		if !oldest.latestAccess.Before(cutoff) && uint64(total) <= maxSize {
			break
		}
		evicted := h.pop()
		for _, key := range evicted.keys {
			if err := c.Storage.Delete(ctx, meta.Path(key)); err != nil {
				return fmt.Errorf("evicting meta for key %q: %w", key, err)
			}
		}
		if err := c.Storage.Delete(ctx, evicted.blobID.Path()); err != nil {
			return fmt.Errorf("evicting blob %s: %w", evicted.blobID, err)
		}
		total -= evicted.size
	}
	return nil
}

// CleanLeftoverTmpFiles sweeps abandoned staged-write temp files, if
// the underlying storage supports it (the filesystem back-end does;
// the in-memory back-end has none to sweep).
func (c *Local) CleanLeftoverTmpFiles() error {
	if sweeper, ok := c.Storage.(TmpSweeper); ok {
		return sweeper.CleanLeftoverTmpFiles()
	}
	return nil
}

// scanBlobSizes enumerates /blob two levels deep (fan-out directory,
// then blob file) building blobid -> size. Entries whose name does not
// decode to a 16-byte BlobId are silently ignored, for forward
// compatibility with foreign files under the storage root.
func (c *Local) scanBlobSizes(ctx context.Context) (map[blobid.BlobId]int64, error) {
	sizes := make(map[blobid.BlobId]int64)
	fanouts, err := c.Storage.List(ctx, "blob")
	if err != nil {
		return nil, err
	}
	for _, fo := range fanouts {
		if fo.Kind != storage.KindDir {
			continue
		}
		files, err := c.Storage.List(ctx, "blob/"+fo.Name)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Kind != storage.KindFile {
				continue
			}
			id, err := blobid.Parse(fo.Name + f.Name)
			if err != nil {
				continue
			}
			sizes[id] = f.Size
		}
	}
	return sizes, nil
}

// scanMetaAggregates enumerates /meta two levels deep (fan-out
// directory, then one file per key) and folds every meta record whose
// blob is present in blobSizes into a blobAggregate. Meta records
// whose blob is absent are ignored — they will simply never be
// surfaced by Get either.
func (c *Local) scanMetaAggregates(ctx context.Context, blobSizes map[blobid.BlobId]int64) (map[blobid.BlobId]*blobAggregate, error) {
	aggregates := make(map[blobid.BlobId]*blobAggregate)
	fanouts, err := c.Storage.List(ctx, "meta")
	if err != nil {
		return nil, err
	}
	for _, fo := range fanouts {
		if fo.Kind != storage.KindDir {
			continue
		}
		keyFiles, err := c.Storage.List(ctx, "meta/"+fo.Name)
		if err != nil {
			return nil, err
		}
		for _, kf := range keyFiles {
			if kf.Kind != storage.KindFile {
				continue
			}
			rec, err := c.readMeta(ctx, "meta/"+fo.Name+"/"+kf.Name)
			if err != nil {
				return nil, err
			}
			size, ok := blobSizes[rec.BlobId]
			if !ok {
				continue
			}
			agg, ok := aggregates[rec.BlobId]
			if !ok {
				agg = &blobAggregate{blobID: rec.BlobId, size: size}
				aggregates[rec.BlobId] = agg
			}
			agg.keys = append(agg.keys, kf.Name)
			if rec.LastAccessed.After(agg.latestAccess) {
				agg.latestAccess = rec.LastAccessed
			}
		}
	}
	return aggregates, nil
}

func (c *Local) readMeta(ctx context.Context, path string) (meta.Record, error) {
	rc, _, err := c.Storage.Get(ctx, path)
	if err != nil {
		return meta.Record{}, fmt.Errorf("reading %s: %w", path, err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return meta.Record{}, fmt.Errorf("reading %s: %w", path, err)
	}
	rec, err := meta.FromBytes(buf)
	if err != nil {
		return meta.Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
