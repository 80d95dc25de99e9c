package docserve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/popmux/pkg/merge"
)

// Server exposes a VersionCache over plain HTTP GET. A request carries
// the serialized version identifier in the "context" query parameter and
// receives the full document as a text body, or an empty body when the
// identifier is already stale.
type Server struct {
	cache *VersionCache
	addr  string

	ln   net.Listener
	srv  *http.Server
	done chan error
}

// NewServer prepares a server on addr; an addr ending in ":0" picks a
// free port at Start time.
func NewServer(cache *VersionCache, addr string) *Server {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	return &Server{cache: cache, addr: addr, done: make(chan error, 1)}
}

// Start binds the listener and begins serving on its own goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleGet)
	s.srv = &http.Server{Handler: mux}

	log.Debugf("document server listening on %s", ln.Addr())
	go func() {
		err := s.srv.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		s.done <- err
	}()
	return nil
}

// URL returns the server's base URL. Only valid after Start.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String()
}

// FetchURL serializes the context's version identifier into a URL a
// later GET can be matched against. The tick and cursor alone are enough
// for the staleness check; nothing else from the context is embedded.
func (s *Server) FetchURL(ctx merge.Context) string {
	ident, err := json.Marshal(ctx.Version())
	if err != nil {
		log.Errorf("serialize version identifier: %v", err)
		return ""
	}
	q := url.Values{}
	q.Set("context", string(ident))
	return s.URL() + "/?" + q.Encode()
}

// SetCurrentVersion forwards to the cache so the server satisfies the
// coordinator's DocumentCache dependency on its own.
func (s *Server) SetCurrentVersion(v merge.Version) {
	s.cache.SetCurrentVersion(v)
}

// Shutdown stops the listener and waits for the serving goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// handleGet serves one document fetch. Any processing fault is reported
// as a 500 with the fault text; the serving goroutine always survives.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("document fetch panic: %v", rec)
			http.Error(w, fmt.Sprint(rec), http.StatusInternalServerError)
		}
	}()

	raw := r.URL.Query().Get("context")
	var requested merge.Version
	if err := json.Unmarshal([]byte(raw), &requested); err != nil {
		log.Errorf("bad version identifier %q: %v", raw, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	text, ok := s.cache.Get(requested)
	if !ok {
		// Stale is not an error: an empty body tells the source to
		// try again with a fresher context.
		return
	}
	io.WriteString(w, text)
}
