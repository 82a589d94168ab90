package cleanup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/storage/memstorage"
)

func mustSet(t *testing.T, c *cache.Local, key, body string) {
	t.Helper()
	w, err := c.Set(context.Background(), []string{key})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	io.WriteString(w, body)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// failingCache is a cache whose every Clean call fails.
type failingCache struct{ *cache.Local }

func (failingCache) Clean(context.Context, cache.CleanOptions) error {
	return errors.New("simulated clean failure")
}

func TestRunSweepsOnEveryTick(t *testing.T) {
	c := &cache.Local{Storage: memstorage.New()}
	mustSet(t, c, "stale", "xx")

	task := &Task{
		Caches:   []NamedCache{{ID: "default", Cache: c, Opts: cache.CleanOptions{MaxTotalSize: 1}}},
		Interval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, err := c.Get(context.Background(), []string{"stale"}); err == nil && !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup never evicted the oversized cache within the deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestRunContinuesPastOneBadCache(t *testing.T) {
	good := &cache.Local{Storage: memstorage.New()}
	mustSet(t, good, "stale", "xx")
	bad := failingCache{&cache.Local{Storage: memstorage.New()}}

	task := &Task{
		Caches: []NamedCache{
			{ID: "bad", Cache: bad, Opts: cache.CleanOptions{MaxTotalSize: 1}},
			{ID: "good", Cache: good, Opts: cache.CleanOptions{MaxTotalSize: 1}},
		},
		Interval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go task.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, err := good.Get(context.Background(), []string{"stale"}); err == nil && !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("good cache was never cleaned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
