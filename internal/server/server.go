package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"pin-clipboard/internal/clipboard"
)

// BuildInfo is reported by the health and metrics endpoints.
type BuildInfo struct {
	Version string
	Commit  string
}

// Pinger is a dependency the health endpoint can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr    string // e.g. ":8080"
	BaseURL string // public origin used in share URLs
	Build   BuildInfo

	Service *clipboard.Service

	// MaxUploadBytes caps a whole upload request body.
	MaxUploadBytes int64

	// Checks are probed by /api/health and /api/ready, keyed by component
	// name.
	Checks map[string]Pinger

	// UploadLimit and RetrieveLimit are requests per minute per client IP.
	// Zero means the defaults.
	UploadLimit   int
	RetrieveLimit int
}

type Server struct {
	httpServer *http.Server
	cfg        Config
	svc        *clipboard.Service
}

const (
	defaultUploadLimit   = 5
	defaultRetrieveLimit = 20
)

func New(cfg Config) *Server {
	if cfg.UploadLimit <= 0 {
		cfg.UploadLimit = defaultUploadLimit
	}
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = defaultRetrieveLimit
	}

	s := &Server{cfg: cfg, svc: cfg.Service}

	uploadLimiter := newRateLimiter("upload", cfg.UploadLimit, time.Minute)
	retrieveLimiter := newRateLimiter("retrieve", cfg.RetrieveLimit, time.Minute)

	mux := http.NewServeMux()

	mux.Handle("POST /api/clipboard/upload", uploadLimiter.middleware(http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /api/clipboard/pin/{pin}", retrieveLimiter.middleware(http.HandlerFunc(s.handleGetByPin)))
	mux.Handle("GET /api/clipboard/latest", retrieveLimiter.middleware(http.HandlerFunc(s.handleGetLatest)))
	mux.HandleFunc("GET /api/files/{id}/{index}", s.handleFile)
	mux.HandleFunc("GET /api/clipboard/cleanup", s.handleCleanup)
	mux.HandleFunc("POST /api/clipboard/cleanup", s.handleCleanup)

	mux.HandleFunc("GET /api/health", s.HandleHealth)
	mux.HandleFunc("GET /api/ready", s.HandleReady)
	mux.HandleFunc("GET /api/live", s.HandleLive)
	mux.Handle("GET /metrics", NewPrometheusExporter(cfg.Build).Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})

	// Wrap middleware: requestID -> logging -> security -> cors -> compression -> mux
	var handler http.Handler = mux
	handler = CompressionMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
