package remote

import (
	"context"
	"crypto/rand"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	biscuit "github.com/biscuit-auth/biscuit-go/v2"

	"github.com/jgosmann/btdt/internal/authtoken"
	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/server"
	"github.com/jgosmann/btdt/internal/storage/memstorage"
)

func startServer(t *testing.T) (*httptest.Server, authtoken.PrivateKey) {
	t.Helper()
	priv, pub := biscuit.GenerateNewKeypair(rand.Reader)
	srv := &server.Server{
		Caches:  map[string]cache.Cache{"default": &cache.Local{Storage: memstorage.New()}},
		RootKey: pub,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, priv
}

func newRemoteCache(t *testing.T, ts *httptest.Server, priv authtoken.PrivateKey) *Cache {
	t.Helper()
	root, err := authtoken.Mint(priv, rand.Reader)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	u, err := url.Parse(ts.URL + "/api/caches/default")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &Cache{BaseURL: u, Token: root}
}

// TestRemoteSetGetRoundTrip exercises the HTTP-chunked half of
// scenario S7 without TLS: a PUT over a chunked request body, followed
// by a GET, against a real server.Server.
func TestRemoteSetGetRoundTrip(t *testing.T) {
	ts, priv := startServer(t)
	rc := newRemoteCache(t, ts, priv)

	w, err := rc.Set(context.Background(), []string{"k1"})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := io.WriteString(w, "remote payload"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, ok, err := rc.Get(context.Background(), []string{"k1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected a hit")
	}
	defer result.Reader.Close()
	if result.MatchedKey != "k1" {
		t.Fatalf("MatchedKey = %q, want k1", result.MatchedKey)
	}
	got, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "remote payload" {
		t.Fatalf("body = %q, want %q", got, "remote payload")
	}
}

func TestRemoteGetMiss(t *testing.T) {
	ts, priv := startServer(t)
	rc := newRemoteCache(t, ts, priv)

	_, ok, err := rc.Get(context.Background(), []string{"missing"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss")
	}
}

func TestRemoteCleanIsNoOp(t *testing.T) {
	ts, priv := startServer(t)
	rc := newRemoteCache(t, ts, priv)
	if err := rc.Clean(context.Background(), cache.CleanOptions{MaxTotalSize: 1}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
}
