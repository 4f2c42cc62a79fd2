// Package static serves the browser client and the small discovery API it
// uses to find the WebSocket endpoint.
package static

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/observability"
)

//go:embed web/index.html
var assets embed.FS

// QRSize is the edge length in pixels of the /qr.png image.
const QRSize = 320

// Options configures the asset server.
type Options struct {
	// Dir serves the UI from disk instead of the embedded copy when set.
	Dir string
	// WebSocketPort and WebSocketPath locate the WebSocket acceptor.
	WebSocketPort int
	WebSocketPath string
	// JoinURL is the address players open to reach the UI. It is encoded by
	// /qr.png and its host backs /api/endpoint when a request has no Host.
	JoinURL string
}

// Endpoint is the body of GET /api/endpoint.
type Endpoint struct {
	WebSocketURL string `json:"websocketUrl"`
}

// Server is the HTTP server for the client UI.
type Server struct {
	host   string
	port   int
	opts   Options
	logger *zap.Logger
	files  http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
}

// NewServer creates an asset server bound to host:port.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns an error if opts.Dir is set but is not a readable directory.
func NewServer(host string, port int, opts Options, logger *zap.Logger) (*Server, error) {
	var files http.Handler
	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("static dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("static dir %s is not a directory", opts.Dir)
		}
		files = http.FileServer(http.Dir(opts.Dir))
	} else {
		sub, err := fs.Sub(assets, "web")
		if err != nil {
			return nil, fmt.Errorf("embedded assets: %w", err)
		}
		files = http.FileServer(http.FS(sub))
	}
	return &Server{
		host:   host,
		port:   port,
		opts:   opts,
		logger: logger,
		files:  files,
	}, nil
}

// Handler returns the full route table wrapped in the shared response headers.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(withHeaders)

	// Middleware only runs on a matched route, so preflight needs its own.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.HandleFunc("/api/endpoint", s.serveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/qr.png", s.serveQR).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(s.files)
	return router
}

// withHeaders allows cross-origin use and disables caching so clients always
// pick up the current endpoint.
func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveEndpoint(w http.ResponseWriter, r *http.Request) {
	body := Endpoint{WebSocketURL: s.WebSocketURL(r.Host)}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("writing endpoint", zap.Error(err))
	}
}

// WebSocketURL builds the ws:// URL for a client that reached the UI via
// requestHost. The client's own view of the host is preferred so that
// localhost and LAN clients both resolve.
func (s *Server) WebSocketURL(requestHost string) string {
	hostname := requestHost
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		hostname = h
	}
	if hostname == "" {
		if u, err := url.Parse(s.opts.JoinURL); err == nil {
			hostname = u.Hostname()
		}
	}
	if hostname == "" {
		hostname = "localhost"
	}
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(hostname, strconv.Itoa(s.opts.WebSocketPort)),
		Path:   s.opts.WebSocketPath,
	}
	return u.String()
}

func (s *Server) serveQR(w http.ResponseWriter, _ *http.Request) {
	if s.opts.JoinURL == "" {
		http.Error(w, "join url not configured", http.StatusNotFound)
		return
	}
	png, err := qrcode.Encode(s.opts.JoinURL, qrcode.Medium, QRSize)
	if err != nil {
		s.logger.Warn("qr generation failed", zap.Error(err))
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ListenAndServe serves the UI until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          observability.NewTransportErrorLog(s.logger, "static"),
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.running = true
	s.mu.Unlock()

	s.logger.Info("static server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("embedded", s.opts.Dir == ""),
	)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving static assets: %w", err)
	}
	return nil
}

// Stop closes the listener and any in-flight requests.
func (s *Server) Stop() {
	s.mu.Lock()
	server := s.server
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning || server == nil {
		return
	}
	_ = server.Close()
	s.logger.Info("static server stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
