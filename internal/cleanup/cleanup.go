// Package cleanup runs the single background eviction worker a btdt
// server keeps alongside its caches.
package cleanup

import (
	"context"
	"time"

	"github.com/jgosmann/btdt/internal/btlog"
	"github.com/jgosmann/btdt/internal/cache"
)

// NamedCache pairs a cache with the eviction bounds it should be
// cleaned against.
type NamedCache struct {
	ID    string
	Cache cache.Cache
	Opts  cache.CleanOptions
}

// Task periodically sweeps every configured cache. Run blocks until
// ctx is cancelled, at which point it finishes any in-flight pass and
// returns; there is no separate abort flag because context
// cancellation already gives Go code a cooperative, select-friendly
// shutdown signal.
type Task struct {
	Caches   []NamedCache
	Interval time.Duration
	Logger   btlog.Logger
}

func (t *Task) logger() btlog.Logger {
	return btlog.OrNop(t.Logger)
}

// Run loops forever, parking for Interval between passes, until ctx is
// done. Each cache's Clean error is logged and does not abort the
// loop or the rest of the pass — one misbehaving cache must not stop
// eviction elsewhere.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Task) runOnce(ctx context.Context) {
	for _, nc := range t.Caches {
		if err := nc.Cache.Clean(ctx, nc.Opts); err != nil {
			t.logger().Printf("cleanup: cache %q: %v", nc.ID, err)
			continue
		}
		if sweeper, ok := nc.Cache.(cache.TmpSweeper); ok {
			if err := sweeper.CleanLeftoverTmpFiles(); err != nil {
				t.logger().Printf("cleanup: cache %q: sweeping leftover tmp files: %v", nc.ID, err)
			}
		}
	}
}
