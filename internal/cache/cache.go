// Package cache implements the content-addressed Cache contract: map
// caller-supplied keys to blobs, evict by age and size, and expose the
// same interface whether the blobs live on a local storage.Storage or
// behind a remote HTTP server.
package cache

import (
	"context"
	"io"
	"time"
)

// GetResult is returned by a successful Get.
type GetResult struct {
	// MatchedKey is whichever key in the preference list actually
	// resolved to a live blob. Callers use this to distinguish a
	// primary hit from a fallback hit.
	MatchedKey string
	Reader     io.ReadCloser
	// SizeHint is the number of bytes Reader will yield, or -1 if
	// unknown (always known for the local cache; the remote cache
	// only knows it when the server sent Content-Length).
	SizeHint int64
}

// SetWriter is returned by Set. Writing to it streams blob content;
// Close publishes the blob and rewrites every key's meta record to
// point at it.
type SetWriter interface {
	io.Writer
	Close() error
}

// CleanOptions bounds an eviction pass. Both fields unset is defined
// as a no-op by Cache.Clean.
type CleanOptions struct {
	// MaxUnusedAge, if non-zero, evicts any blob whose most recent
	// access (across every key referencing it) is older than this.
	MaxUnusedAge time.Duration
	// MaxTotalSize, if non-zero, evicts the least-recently-used blobs
	// until the remaining total is at or under this many bytes.
	MaxTotalSize uint64
}

// IsZero reports whether o places no eviction bound at all, making
// Clean a no-op.
func (o CleanOptions) IsZero() bool {
	return o.MaxUnusedAge == 0 && o.MaxTotalSize == 0
}

// Cache is the contract implemented identically by the local
// filesystem/in-memory cache and by the HTTP-backed remote cache, and
// multiplexed by the server across several named backing caches.
type Cache interface {
	// Get walks keys left to right and returns the first one whose
	// meta record resolves to an extant blob. It returns
	// (GetResult{}, false, nil) if every key misses.
	Get(ctx context.Context, keys []string) (GetResult, bool, error)

	// Set draws a new blob id, stages the blob, and on Close rewrites
	// every key's meta record to reference it.
	Set(ctx context.Context, keys []string) (SetWriter, error)

	// Clean evicts blobs (and their referencing meta records)
	// according to opts. Storages whose eviction is owned elsewhere
	// (e.g. a Remote cache, whose server is responsible for its own
	// cleanup) may treat this as a no-op.
	Clean(ctx context.Context, opts CleanOptions) error
}

// TmpSweeper is implemented by caches and storages that can sweep
// abandoned staged-write temp files (Local implements it by delegating
// to its storage, which is a no-op unless the storage is filesystem-
// backed). The server's cleanup task type-asserts for this to decide
// whether to run clean_leftover_tmp_files after an eviction pass.
type TmpSweeper interface {
	CleanLeftoverTmpFiles() error
}
