package cache

import (
	"context"
	"testing"
	"time"
)

func countEntries(t *testing.T, c *Local, root string) int {
	t.Helper()
	fanouts, err := c.Storage.List(context.Background(), root)
	if err != nil {
		t.Fatalf("List %s: %v", root, err)
	}
	total := 0
	for _, fo := range fanouts {
		files, err := c.Storage.List(context.Background(), root+"/"+fo.Name)
		if err != nil {
			t.Fatalf("List %s/%s: %v", root, fo.Name, err)
		}
		total += len(files)
	}
	return total
}

// TestEvictionByAge covers scenario S3.
func TestEvictionByAge(t *testing.T) {
	start := time.Unix(0, 0)
	c, clk := newTestCache(start)
	mustSet(t, c, []string{"old"}, "x")

	clk.now = start.Add(2 * 24 * time.Hour)
	mustSet(t, c, []string{"new"}, "y")

	clk.now = start.Add(3 * 24 * time.Hour)
	if err := c.Clean(context.Background(), CleanOptions{MaxUnusedAge: 2 * 24 * time.Hour}); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if _, ok := mustGet(t, c, []string{"old"}); ok {
		t.Fatalf("expected old to be evicted")
	}
	if _, ok := mustGet(t, c, []string{"new"}); !ok {
		t.Fatalf("expected new to survive")
	}
	if n := countEntries(t, c, "blob"); n != 1 {
		t.Fatalf("blob count = %d, want 1", n)
	}
}

// TestEvictionBySize covers scenario S4: four 10-byte blobs at
// t=0,1,2,3d; clean(max_size=21) retains exactly the two newest.
func TestEvictionBySize(t *testing.T) {
	start := time.Unix(0, 0)
	c, clk := newTestCache(start)
	body := "0123456789" // 10 bytes
	keys := []string{"k0", "k1", "k2", "k3"}
	for i, k := range keys {
		clk.now = start.Add(time.Duration(i) * 24 * time.Hour)
		mustSet(t, c, []string{k}, body)
	}

	if err := c.Clean(context.Background(), CleanOptions{MaxTotalSize: 21}); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	for i, k := range keys {
		_, ok := mustGet(t, c, []string{k})
		wantSurvive := i >= 2 // k2, k3 are the two newest
		if ok != wantSurvive {
			t.Fatalf("key %q survived=%v, want %v", k, ok, wantSurvive)
		}
	}
	if n := countEntries(t, c, "meta"); n != 2 {
		t.Fatalf("meta count = %d, want 2", n)
	}
}

// TestEvictionRemovesOnlyKeysOfRemovedBlobs covers invariant 4(c):
// keys sharing a blob are kept or removed together, and the most
// recently used blob survives.
func TestEvictionRemovesOnlyKeysOfRemovedBlobs(t *testing.T) {
	start := time.Unix(0, 0)
	c, clk := newTestCache(start)
	mustSet(t, c, []string{"shared-a", "shared-b"}, "shared")
	clk.now = start.Add(time.Hour)
	mustSet(t, c, []string{"solo"}, "solo-body")

	clk.now = start.Add(2 * time.Hour)
	if err := c.Clean(context.Background(), CleanOptions{MaxTotalSize: uint64(len("solo-body"))}); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	_, aOK := mustGet(t, c, []string{"shared-a"})
	_, bOK := mustGet(t, c, []string{"shared-b"})
	if aOK != bOK {
		t.Fatalf("shared keys diverged: shared-a=%v shared-b=%v", aOK, bOK)
	}
	if _, ok := mustGet(t, c, []string{"solo"}); !ok {
		t.Fatalf("expected solo (the most recent) to survive")
	}
}

func TestCleanNoOpWithoutBounds(t *testing.T) {
	c, _ := newTestCache(time.Unix(0, 0))
	mustSet(t, c, []string{"k"}, "x")
	if err := c.Clean(context.Background(), CleanOptions{}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, ok := mustGet(t, c, []string{"k"}); !ok {
		t.Fatalf("expected a no-op Clean to leave the key intact")
	}
}
