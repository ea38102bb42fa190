package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lattiq/sestemplates"
)

// Options are the dependencies of the HTTP surface.
type Options struct {
	Config  sestemplates.Config
	Manager sestemplates.TemplateManager

	// Limiter may be nil, in which case no request is throttled.
	Limiter *sestemplates.RateLimiter

	// Metrics may be nil, in which case /metrics is not mounted.
	Metrics *sestemplates.Metrics

	Logger *zap.Logger
}

// Server serves the JSON API and, optionally, a single-page application.
type Server struct {
	opts    Options
	router  chi.Router
	srv     *http.Server
	mu      sync.Mutex
	running bool
}

// New builds the router. It does not start listening.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	cfg := s.opts.Config
	r := chi.NewRouter()

	r.Use(requestID)
	if cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(s.opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument(s.opts.Metrics))
	r.Use(securityHeaders)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/healthz", healthz)
	r.Get("/version", version)
	if s.opts.Metrics != nil && cfg.Monitoring.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Monitoring.Metrics.Path, s.opts.Metrics.Handler())
	}

	h := &handlers{manager: s.opts.Manager}
	limiter := s.opts.Limiter

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(rateLimit(limiter.AllowRequest, s.opts.Logger))
		}

		r.Get("/list-templates", h.listTemplates)
		r.Get("/get-template/{template_name}", h.getTemplate)
		r.Post("/create-template", h.createTemplate)
		r.Put("/update-template", h.updateTemplate)
		r.Delete("/delete-template/{template_name}", h.deleteTemplate)
		r.Post("/duplicate-template", h.duplicateTemplate)
		r.Get("/regions", h.regions)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(rateLimit(limiter.Send.Allow, s.opts.Logger))
			}
			r.Post("/send-template", h.sendTemplate)
		})
	})

	if cfg.Server.StaticDir != "" {
		r.Get("/*", spaHandler(cfg.Server.StaticDir))
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html for
// unknown paths so client-side routes resolve.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}

// Run listens on the configured address and blocks until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.opts.Config.Server

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.running = true
	srv := s.srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	s.opts.Logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}
