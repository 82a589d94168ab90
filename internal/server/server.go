// Package server exposes a Cache over HTTP: health check, authorized
// get/put against one of several named backing caches, all wired
// through stdlib net/http (unlike the client side, a real server
// benefits from net/http's connection handling, and spec.md only
// mandates the hand-rolled state machine for the client).
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jgosmann/btdt/internal/authtoken"
	"github.com/jgosmann/btdt/internal/btdterr"
	"github.com/jgosmann/btdt/internal/btlog"
	"github.com/jgosmann/btdt/internal/cache"
	"github.com/jgosmann/btdt/internal/clock"
)

// Server dispatches requests across a fixed set of named caches. Each
// entry can be backed by an in-memory cache, a filesystem cache, or a
// remote.Cache — cache.Cache's uniform interface is the "tagged
// variant" spec.md describes; Go's interfaces make a literal sum type
// unnecessary here, so there's no separate enum wrapping them.
type Server struct {
	Caches        map[string]cache.Cache
	RootKey       authtoken.PublicKey
	Logger        btlog.Logger
	Clock         clock.Clock
	ShutdownFor   time.Duration
	EnableAPIDocs bool
}

func (s *Server) logger() btlog.Logger {
	return btlog.OrNop(s.Logger)
}

func (s *Server) clock() clock.Clock {
	if s.Clock == nil {
		return clock.System{}
	}
	return s.Clock
}

// Handler builds the request mux. It is separated from Server so
// callers can wrap it in their own middleware before handing it to an
// http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/caches/", s.handleCache)
	if s.EnableAPIDocs {
		mux.HandleFunc("/docs", s.handleDocs)
	}
	return mux
}

// handleDocs serves a minimal hand-written API description. It is not
// a full Swagger UI bundle: that would pull in a sizeable embedded
// static asset tree for a single debug-only route.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "GET /api/health\nGET /api/caches/{id}?key=...\nPUT /api/caches/{id}?key=...\n")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/caches/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	var operation string
	switch r.Method {
	case http.MethodGet:
		operation = "get"
	case http.MethodPut:
		operation = "put"
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	c, ok := s.Caches[id]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := s.authorize(r, operation, id); err != nil {
		if errors.Is(err, btdterr.ErrAuthDenied) {
			w.WriteHeader(http.StatusForbidden)
		} else {
			w.WriteHeader(http.StatusUnauthorized)
		}
		s.logger().Printf("auth rejected %s /api/caches/%s: %v", r.Method, id, err)
		return
	}

	keys := r.URL.Query()["key"]
	switch operation {
	case "get":
		s.handleGet(w, r, c, keys)
	case "put":
		s.handlePut(w, r, c, keys)
	}
}

func (s *Server) authorize(r *http.Request, operation, cacheID string) error {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("%w: missing or malformed Authorization header", btdterr.ErrAuthInvalid)
	}
	token := []byte(strings.TrimPrefix(header, prefix))
	return authtoken.Authorize(token, s.RootKey, operation, cacheID, s.clock().Now())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, c cache.Cache, keys []string) {
	result, ok, err := c.Get(r.Context(), keys)
	if err != nil {
		s.logger().Printf("get failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer result.Reader.Close()
	w.Header().Set("Btdt-Cache-Key", result.MatchedKey)
	if result.SizeHint >= 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", result.SizeHint))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, result.Reader)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, c cache.Cache, keys []string) {
	if len(keys) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writer, err := c.Set(r.Context(), keys)
	if err != nil {
		s.logger().Printf("set failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(writer, r.Body); err != nil {
		s.logger().Printf("set body copy failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := writer.Close(); err != nil {
		s.logger().Printf("set commit failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Shutdown gracefully stops srv, giving in-flight requests up to the
// configured deadline (60s by default) to finish.
func Shutdown(ctx context.Context, srv *http.Server, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
