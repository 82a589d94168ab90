// Command btdt-server runs the HTTP cache server: it multiplexes
// several named caches behind Biscuit-authorized GET/PUT routes and
// periodically evicts all of them in the background.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/crypto/pkcs12"

	"github.com/jgosmann/btdt/internal/authtoken"
	"github.com/jgosmann/btdt/internal/btlog"
	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/cleanup"
	"github.com/jgosmann/btdt/internal/config"
	"github.com/jgosmann/btdt/internal/server"
	"github.com/jgosmann/btdt/internal/storage/fsstorage"
	"github.com/jgosmann/btdt/internal/storage/memstorage"
)

func fatalf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load(config.ConfigFilePath())
	if err != nil {
		fatalf("%v", err)
	}

	// The server only ever authorizes tokens against the public half
	// of the keypair; it never mints new tokens itself.
	_, pub, err := authtoken.LoadOrCreateKeyFile(cfg.AuthPrivateKey)
	if err != nil {
		fatalf("loading auth key: %v", err)
	}

	caches := make(map[string]cache.Cache, len(cfg.Caches))
	for id, cc := range cfg.Caches {
		c, err := buildCache(cc)
		if err != nil {
			fatalf("configuring cache %q: %v", id, err)
		}
		caches[id] = c
	}

	logger := btlog.New(os.Stderr, "btdt-server: ")

	maxAge, maxSize, err := cfg.EvictionBudget()
	if err != nil {
		fatalf("%v", err)
	}
	interval, err := cfg.CleanupInterval()
	if err != nil {
		fatalf("%v", err)
	}
	named := make([]cleanup.NamedCache, 0, len(caches))
	for id, c := range caches {
		named = append(named, cleanup.NamedCache{
			ID:    id,
			Cache: c,
			Opts:  cache.CleanOptions{MaxUnusedAge: maxAge, MaxTotalSize: maxSize},
		})
	}
	task := &cleanup.Task{Caches: named, Interval: interval, Logger: logger}

	ctx, cancelCleanup := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task.Run(ctx)
	}()

	srv := &server.Server{Caches: caches, RootKey: pub, Logger: logger, EnableAPIDocs: cfg.EnableAPIDocs}
	httpServer := &http.Server{Handler: srv.Handler()}

	var tlsConfig *tls.Config
	if cfg.TLSKeystore != "" {
		tlsConfig, err = loadTLSKeystore(cfg.TLSKeystore, cfg.TLSKeystorePass)
		if err != nil {
			fatalf("loading tls_keystore: %v", err)
		}
	}

	listeners := make([]net.Listener, 0, len(cfg.BindAddrs))
	for _, addr := range cfg.BindAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			fatalf("listening on %s: %v", addr, err)
		}
		if tlsConfig != nil {
			ln = tls.NewListener(ln, tlsConfig)
		}
		listeners = append(listeners, ln)
	}
	if len(listeners) == 0 {
		fatalf("no bind_addrs configured")
	}

	for _, ln := range listeners {
		ln := ln
		go func() {
			if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Printf("serve %s: %v", ln.Addr(), err)
			}
		}()
	}
	log.Printf("btdt-server listening on %v", cfg.BindAddrs)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancelCleanup()
	if err := server.Shutdown(context.Background(), httpServer, 0); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	wg.Wait()
}

// loadTLSKeystore decodes a PKCS#12 bundle (the format produced by
// most CI secret stores for a cert+key pair) into a tls.Config
// presenting that certificate.
func loadTLSKeystore(path, password string) (*tls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decoding PKCS#12 bundle %s: %w", path, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}},
	}, nil
}

func buildCache(cc config.CacheConfig) (cache.Cache, error) {
	switch cc.Type {
	case "InMemory":
		return &cache.Local{Storage: memstorage.New()}, nil
	case "Filesystem":
		st, err := fsstorage.New(cc.Path)
		if err != nil {
			return nil, err
		}
		return &cache.Local{Storage: st}, nil
	default:
		return nil, fmt.Errorf("unrecognized cache type %q", cc.Type)
	}
}
