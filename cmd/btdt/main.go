// Command btdt is the CLI entrypoint: store a directory under one or
// more cache keys, restore it by preference-ordered keys, run manual
// eviction, or hash a file with BLAKE3.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/humanduration"
	"github.com/jgosmann/btdt/internal/humansize"
	"github.com/jgosmann/btdt/internal/pipeline"
	"github.com/jgosmann/btdt/internal/remote"
	"github.com/jgosmann/btdt/internal/storage/fsstorage"
)

func exitf(code int, f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s store    --cache <path|url> --keys k1,k2 [--keys ...] [--auth-token-file F] [--root-cert F]... <source-dir>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s restore  --cache <path|url> --keys k1,k2 [--keys ...] [--success-rc-on-any-key] <destination-dir>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s clean    --cache <path> [--max-age 7d] [--max-size 1GiB]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s hash     <file>\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "store":
		cmdStore(os.Args[2:])
	case "restore":
		cmdRestore(os.Args[2:])
	case "clean":
		cmdClean(os.Args[2:])
	case "hash":
		cmdHash(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// keysFlag implements flag.Value for --keys, which is repeatable and
// comma-separated; empty components are dropped, matching spec.md's
// CLI grammar.
type keysFlag struct{ keys []string }

func (k *keysFlag) String() string { return strings.Join(k.keys, ",") }
func (k *keysFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part != "" {
			k.keys = append(k.keys, part)
		}
	}
	return nil
}

// rootCertFlag implements flag.Value for repeatable --root-cert.
type rootCertFlag struct{ paths []string }

func (r *rootCertFlag) String() string { return strings.Join(r.paths, ",") }
func (r *rootCertFlag) Set(v string) error {
	r.paths = append(r.paths, v)
	return nil
}

func openCache(target string, authTokenFile string, rootCerts []string) (cache.Cache, error) {
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		var tlsConfig *tls.Config
		if len(rootCerts) > 0 {
			pool := x509.NewCertPool()
			for _, p := range rootCerts {
				pem, err := os.ReadFile(p)
				if err != nil {
					return nil, fmt.Errorf("reading root cert %s: %w", p, err)
				}
				if !pool.AppendCertsFromPEM(pem) {
					return nil, fmt.Errorf("root cert %s: no certificates found", p)
				}
			}
			tlsConfig = &tls.Config{RootCAs: pool}
		}
		var token []byte
		if authTokenFile != "" {
			token, err = os.ReadFile(authTokenFile)
			if err != nil {
				return nil, fmt.Errorf("reading auth token file %s: %w", authTokenFile, err)
			}
		}
		return &remote.Cache{BaseURL: u, TLSConfig: tlsConfig, Token: token}, nil
	}

	st, err := fsstorage.New(target)
	if err != nil {
		return nil, fmt.Errorf("opening filesystem cache %s: %w", target, err)
	}
	return &cache.Local{Storage: st}, nil
}

func cmdStore(args []string) {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	var cachePath, authTokenFile string
	var keys keysFlag
	var rootCerts rootCertFlag
	fs.StringVar(&cachePath, "cache", "", "cache path or URL")
	fs.Var(&keys, "keys", "comma-separated cache keys (repeatable)")
	fs.StringVar(&authTokenFile, "auth-token-file", "", "file containing the Biscuit bearer token")
	fs.Var(&rootCerts, "root-cert", "PEM file of a trusted root certificate (repeatable)")
	fs.Parse(args)
	if fs.NArg() != 1 || cachePath == "" || len(keys.keys) == 0 {
		usage()
		os.Exit(2)
	}
	sourceDir := fs.Arg(0)

	c, err := openCache(cachePath, authTokenFile, rootCerts.paths)
	if err != nil {
		exitf(1, "%v", err)
	}
	ctx := context.Background()
	if err := pipeline.Pack(ctx, c, keys.keys, sourceDir); err != nil {
		exitf(1, "store failed: %v", err)
	}
}

func cmdRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	var cachePath string
	var keys keysFlag
	var successOnAnyKey bool
	fs.StringVar(&cachePath, "cache", "", "cache path or URL")
	fs.Var(&keys, "keys", "comma-separated cache keys (repeatable)")
	fs.BoolVar(&successOnAnyKey, "success-rc-on-any-key", false, "exit 0 even on a non-primary key hit")
	fs.Parse(args)
	if fs.NArg() != 1 || cachePath == "" || len(keys.keys) == 0 {
		usage()
		os.Exit(2)
	}
	destDir := fs.Arg(0)

	c, err := openCache(cachePath, "", nil)
	if err != nil {
		exitf(1, "%v", err)
	}
	ctx := context.Background()
	matched, ok, err := pipeline.Unpack(ctx, c, keys.keys, destDir)
	if err != nil {
		exitf(1, "restore failed: %v", err)
	}
	if !ok {
		exitf(4, "Keys not found in cache.")
	}
	if matched != keys.keys[0] && !successOnAnyKey {
		fmt.Fprintf(os.Stderr, "restored non-primary key %q\n", matched)
		os.Exit(3)
	}
}

func cmdClean(args []string) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	var cachePath, maxAge, maxSize string
	fs.StringVar(&cachePath, "cache", "", "cache path")
	fs.StringVar(&maxAge, "max-age", "", "evict blobs unused for longer than this (e.g. 7d)")
	fs.StringVar(&maxSize, "max-size", "", "evict oldest blobs until the cache is at or under this size (e.g. 1GiB)")
	fs.Parse(args)
	if cachePath == "" {
		usage()
		os.Exit(2)
	}

	var opts cache.CleanOptions
	if maxAge != "" {
		d, err := humanduration.Parse(maxAge)
		if err != nil {
			exitf(2, "invalid --max-age: %v", err)
		}
		opts.MaxUnusedAge = d
	}
	if maxSize != "" {
		n, err := humansize.Parse(maxSize)
		if err != nil {
			exitf(2, "invalid --max-size: %v", err)
		}
		opts.MaxTotalSize = uint64(n)
	}

	c, err := openCache(cachePath, "", nil)
	if err != nil {
		exitf(1, "%v", err)
	}
	if err := c.Clean(context.Background(), opts); err != nil {
		exitf(1, "clean failed: %v", err)
	}
	if sweeper, ok := c.(cache.TmpSweeper); ok {
		if err := sweeper.CleanLeftoverTmpFiles(); err != nil {
			exitf(1, "cleaning leftover temp files failed: %v", err)
		}
	}
}

func cmdHash(args []string) {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		exitf(1, "%v", err)
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		exitf(1, "hashing %s: %v", fs.Arg(0), err)
	}
	fmt.Printf("%x\n", h.Sum(nil))
}
