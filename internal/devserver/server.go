package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/roach88/rostersync/internal/catalog"
	"github.com/roach88/rostersync/internal/store"
)

// DefaultWriteTimeout bounds a single frame write to one session.
const DefaultWriteTimeout = 5 * time.Second

// ErrServerClosed is returned by Server methods after Close.
var ErrServerClosed = errors.New("devserver: server closed")

// Server speaks the replication protocol over websockets.
//
// Apply and fan-out are serialized by mu, so every authenticated session
// observes server operations in the same order, and a session that just
// authenticated receives its Full before any later operation.
type Server struct {
	store        *store.Store
	secret       []byte
	ids          IDGenerator
	cat          *catalog.Catalog
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithIDGenerator replaces the UUIDv7 entry id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// WithCatalog sets the wire catalog frames are validated against.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Server) {
		s.cat = c
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// New creates a server over st. Tokens are verified with secret.
func New(st *store.Store, secret []byte, opts ...Option) (*Server, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	s := &Server{
		store:        st,
		secret:       secret,
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		peers: make(map[*peer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cat == nil {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("devserver: %w", err)
		}
		s.cat = cat
	}
	return s, nil
}

// Router returns the HTTP handler: /ws for the socket and /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	return r
}

// Sessions returns the number of open sockets.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close closes every open socket and waits for their handlers to return.
// The store is not closed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	s.mu.Lock()
	if s.closed {
		status, code = "closed", http.StatusServiceUnavailable
	}
	n := len(s.peers)
	s.mu.Unlock()

	writeJSON(w, code, map[string]any{"status": status, "sessions": n})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "server_closed")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{id: s.nextID.Add(1), conn: conn}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("session opened", "session_id", p.id, "remote", r.RemoteAddr)
	s.serve(r.Context(), p)

	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	conn.Close()
	s.logger.Debug("session closed", "session_id", p.id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

