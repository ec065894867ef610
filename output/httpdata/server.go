package httpdata

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/c360/netpublish/errors"
)

// DefaultPort is the port the data server listens on when none is configured.
const DefaultPort = 2084

// ServerConfig configures the data server.
type ServerConfig struct {
	// Addr is the listen address, for example ":2084".
	Addr string
	// AllowedOrigins lists the CORS origins. Empty allows every origin.
	AllowedOrigins []string
	// ShutdownTimeout bounds Stop when the caller's context has no deadline.
	ShutdownTimeout time.Duration
	// Health serves /health. Nil answers a plain "OK".
	Health http.Handler
	// TLS serves HTTPS when set.
	TLS *tls.Config
}

// Server serves the data handler and the stream.
type Server struct {
	cfg    ServerConfig
	data   *DataHandler
	stream *Stream
	logger *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for data. stream may be nil.
func NewServer(cfg ServerConfig, data *DataHandler, stream *Stream, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		data:   data,
		stream: stream,
		logger: logger.With("component", "http-server"),
	}
}

// Router returns the handler served by Start.
func (s *Server) Router() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle(DataPath, s.data)
	if s.stream != nil {
		r.Get(StreamPath, s.stream.ServeHTTP)
	}
	if s.cfg.Health != nil {
		r.Method(http.MethodGet, "/health", s.cfg.Health)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
	}
	return r
}

// Listen binds the listen address. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Listen", "listen on "+s.cfg.Addr)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Start serves until Stop is called. It blocks and returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start data server")
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info("data server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS != nil)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start", "serve data on "+ln.Addr().String())
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		if s.listener != nil {
			_ = s.listener.Close()
			s.listener = nil
		}
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shut down data server")
	}
	return nil
}
