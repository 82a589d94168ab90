// Package remote implements the Cache contract over HTTP against a
// btdt server, using the hand-rolled httpclient and Biscuit capability
// tokens attenuated per request.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/jgosmann/btdt/internal/authtoken"
	"github.com/jgosmann/btdt/internal/btdterr"
	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/clock"
	"github.com/jgosmann/btdt/internal/httpclient"
)

// tokenTTL is how far into the future every attenuated request token
// is allowed to remain valid.
const tokenTTL = 5 * time.Minute

// Cache implements cache.Cache against a single named cache on a btdt
// server. BaseURL's final path segment is the cache id.
type Cache struct {
	BaseURL   *url.URL
	TLSConfig *tls.Config
	// Token is the caller's root or already-attenuated Biscuit token.
	// Every request attenuates a fresh copy scoped to that one
	// request's operation, cache id, and expiry; Token itself is
	// never mutated or sent as-is.
	Token []byte
	// Rand seeds the nonce used when appending an attenuation block.
	// Nil selects Biscuit's default crypto/rand-backed source.
	Rand  io.Reader
	Clock clock.Clock
}

var _ cache.Cache = (*Cache)(nil)

func (c *Cache) clock() clock.Clock {
	if c.Clock == nil {
		return clock.System{}
	}
	return c.Clock
}

func (c *Cache) cacheID() string {
	segs := strings.Split(strings.Trim(c.BaseURL.Path, "/"), "/")
	return segs[len(segs)-1]
}

func (c *Cache) authorize(operation string) (string, error) {
	now := c.clock().Now()
	attenuated, err := authtoken.Attenuate(c.Token, c.Rand, operation, c.cacheID(), now.Add(tokenTTL))
	if err != nil {
		return "", fmt.Errorf("attenuating token: %w", err)
	}
	return "Bearer " + string(attenuated), nil
}

func (c *Cache) requestURL(keys []string) *url.URL {
	u := *c.BaseURL
	q := make(url.Values)
	for _, k := range keys {
		q.Add("key", k)
	}
	u.RawQuery = q.Encode()
	return &u
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, keys []string) (cache.GetResult, bool, error) {
	auth, err := c.authorize("get")
	if err != nil {
		return cache.GetResult{}, false, err
	}
	req, err := httpclient.Open(ctx, "GET", c.requestURL(keys), c.TLSConfig)
	if err != nil {
		return cache.GetResult{}, false, err
	}
	req.Header("Authorization", auth)
	status, err := req.NoBody()
	if err != nil {
		return cache.GetResult{}, false, err
	}
	code, respHeaders, err := status.Status()
	if err != nil {
		return cache.GetResult{}, false, err
	}
	headers, respBody, err := respHeaders.Headers()
	if err != nil {
		return cache.GetResult{}, false, err
	}

	if code == 204 {
		body, _, err := respBody.Body()
		if err != nil {
			return cache.GetResult{}, false, err
		}
		body.Close()
		return cache.GetResult{}, false, nil
	}
	if code < 200 || code >= 300 {
		return cache.GetResult{}, false, remoteError(code, respBody)
	}

	matched := headers.Get("Btdt-Cache-Key")
	if !containsKey(keys, matched) {
		body, _, _ := respBody.Body()
		if body != nil {
			body.Close()
		}
		return cache.GetResult{}, false, fmt.Errorf("%w: response Btdt-Cache-Key %q does not match any requested key", btdterr.ErrInvalidData, matched)
	}
	reader, size, err := respBody.Body()
	if err != nil {
		return cache.GetResult{}, false, err
	}
	return cache.GetResult{MatchedKey: matched, Reader: reader, SizeHint: size}, true, nil
}

// Set implements cache.Cache.
func (c *Cache) Set(ctx context.Context, keys []string) (cache.SetWriter, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: set requires at least one key", btdterr.ErrInvalidInput)
	}
	auth, err := c.authorize("put")
	if err != nil {
		return nil, err
	}
	req, err := httpclient.Open(ctx, "PUT", c.requestURL(keys), c.TLSConfig)
	if err != nil {
		return nil, err
	}
	req.Header("Authorization", auth)
	body, err := req.ChunkedBody()
	if err != nil {
		return nil, err
	}
	return &setWriter{body: body}, nil
}

type setWriter struct {
	body *httpclient.ChunkedBodyWriter
}

func (w *setWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

func (w *setWriter) Close() error {
	status, err := w.body.Response()
	if err != nil {
		return err
	}
	code, headers, err := status.Status()
	if err != nil {
		return err
	}
	_, respBody, err := headers.Headers()
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return remoteError(code, respBody)
	}
	reader, _, err := respBody.Body()
	if err == nil && reader != nil {
		reader.Close()
	}
	return nil
}

// Clean implements cache.Cache as a no-op: eviction of a remote cache
// is the remote server's own responsibility.
func (c *Cache) Clean(ctx context.Context, opts cache.CleanOptions) error {
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func remoteError(code int, respBody *httpclient.ResponseBody) error {
	reader, _, err := respBody.Body()
	var msg []byte
	if err == nil && reader != nil {
		msg, _ = io.ReadAll(reader)
		reader.Close()
	}
	return &btdterr.RemoteStatus{Code: code, Body: string(msg)}
}
