package cache

import (
	"bytes"
	"context"
	"io"
	"testing"
	"testing/quick"
	"time"

	"github.com/jgosmann/btdt/internal/meta"
	"github.com/jgosmann/btdt/internal/storage/memstorage"
)

// mutableClock is a clock.Clock whose reported time can be advanced
// between calls, for tests that drive eviction across simulated days.
type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func newTestCache(now time.Time) (*Local, *mutableClock) {
	clk := &mutableClock{now: now}
	return &Local{Storage: memstorage.New(), Clock: clk}, clk
}

func mustSet(t *testing.T, c *Local, keys []string, body string) {
	t.Helper()
	w, err := c.Set(context.Background(), keys)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func mustGet(t *testing.T, c *Local, keys []string) (string, bool) {
	t.Helper()
	res, ok, err := c.Get(context.Background(), keys)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		return "", false
	}
	defer res.Reader.Close()
	data, err := io.ReadAll(res.Reader)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	return string(data), true
}

func readMetaRecord(t *testing.T, c *Local, key string) meta.Record {
	t.Helper()
	rc, _, err := c.Storage.Get(context.Background(), meta.Path(key))
	if err != nil {
		t.Fatalf("reading meta for %q: %v", key, err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading meta for %q: %v", key, err)
	}
	rec, err := meta.FromBytes(buf)
	if err != nil {
		t.Fatalf("parsing meta for %q: %v", key, err)
	}
	return rec
}

// TestRoundTrip covers invariant 1: every key in a Set is readable back
// with the exact bytes written.
func TestRoundTrip(t *testing.T) {
	err := quick.Check(func(body []byte) bool {
		c, _ := newTestCache(time.Unix(1000, 0))
		mustSet(t, c, []string{"k1", "k2"}, string(body))
		for _, k := range []string{"k1", "k2"} {
			got, ok := mustGet(t, c, []string{k})
			if !ok || got != string(body) {
				return false
			}
		}
		return true
	}, nil)
	if err != nil {
		t.Error(err)
	}
}

// TestPreferenceOrder covers invariant 2: Get returns the first key
// whose meta resolves to an extant blob, and none iff all fail.
func TestPreferenceOrder(t *testing.T) {
	c, _ := newTestCache(time.Unix(1000, 0))
	mustSet(t, c, []string{"only-second"}, "payload")

	matched, ok := mustGet(t, c, []string{"missing", "only-second"})
	if !ok || matched != "payload" {
		t.Fatalf("Get = %q, %v, want %q, true", matched, ok, "payload")
	}

	res, ok, err := c.Get(context.Background(), []string{"missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("Get returned a hit for an absent key: %+v", res)
	}
}

// TestLastAccessMonotonicity covers invariant 3: under an advancing
// clock, repeated Gets of the same key never move LastAccessed
// backwards.
func TestLastAccessMonotonicity(t *testing.T) {
	c, clk := newTestCache(time.Unix(1000, 0))
	mustSet(t, c, []string{"k"}, "x")

	prev := readMetaRecord(t, c, "k").LastAccessed
	for i := 0; i < 5; i++ {
		clk.now = clk.now.Add(time.Duration(i+1) * time.Second)
		if _, ok := mustGet(t, c, []string{"k"}); !ok {
			t.Fatalf("expected hit on iteration %d", i)
		}
		cur := readMetaRecord(t, c, "k").LastAccessed
		if cur.Before(prev) {
			t.Fatalf("LastAccessed moved backwards: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestSharedBlobOneKeyTouched(t *testing.T) {
	// Scenario S5: store [old,new] -> B at t=0; at t=2d, get(new); the
	// blob's latest access across all its keys must reflect the touch,
	// so clean(max_age=1d) removes neither key.
	now := time.Unix(0, 0)
	c, clk := newTestCache(now)
	mustSet(t, c, []string{"old", "new"}, "shared")

	clk.now = now.Add(2 * 24 * time.Hour)
	if _, ok := mustGet(t, c, []string{"new"}); !ok {
		t.Fatalf("expected hit on new")
	}

	if err := c.Clean(context.Background(), CleanOptions{MaxUnusedAge: 24 * time.Hour}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, ok := mustGet(t, c, []string{"old"}); !ok {
		t.Fatalf("expected old to survive since the shared blob was touched via new")
	}
	if _, ok := mustGet(t, c, []string{"new"}); !ok {
		t.Fatalf("expected new to survive")
	}
}

func TestDanglingMeta(t *testing.T) {
	// Scenario S6: deleting every blob after a store leaves dangling
	// meta; a subsequent Get for a key whose blob was restored by a
	// fresh store succeeds, while the truly dangling key misses.
	c, _ := newTestCache(time.Unix(0, 0))
	mustSet(t, c, []string{"k0"}, "gone")

	fanouts, err := c.Storage.List(context.Background(), "blob")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, fo := range fanouts {
		files, err := c.Storage.List(context.Background(), "blob/"+fo.Name)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, f := range files {
			if err := c.Storage.Delete(context.Background(), "blob/"+fo.Name+"/"+f.Name); err != nil {
				t.Fatalf("Delete: %v", err)
			}
		}
	}

	mustSet(t, c, []string{"k1"}, "fresh")

	if _, ok := mustGet(t, c, []string{"k0", "k1"}); !ok {
		t.Fatalf("expected hit on k1")
	}
	res, ok, err := c.Get(context.Background(), []string{"k0"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected k0 alone to miss, got %+v", res)
	}
}

func TestSetRejectsEmptyKeys(t *testing.T) {
	c, _ := newTestCache(time.Unix(0, 0))
	if _, err := c.Set(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty key set")
	}
}

func TestConcurrentSetYieldsOneWholeWrite(t *testing.T) {
	// Invariant 5: after two concurrent Sets to the same key, a reader
	// must observe one whole write, never a prefix or interleaving.
	c, _ := newTestCache(time.Unix(0, 0))
	a := bytes.Repeat([]byte("A"), 4096)
	b := bytes.Repeat([]byte("B"), 4096)

	done := make(chan struct{}, 2)
	for _, body := range [][]byte{a, b} {
		body := body
		go func() {
			mustSet(t, c, []string{"shared-key"}, string(body))
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	got, ok := mustGet(t, c, []string{"shared-key"})
	if !ok {
		t.Fatalf("expected a hit after concurrent sets")
	}
	if got != string(a) && got != string(b) {
		t.Fatalf("result was neither pure write: len=%d", len(got))
	}
}
