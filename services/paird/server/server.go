package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"oraclepair/native/pair"
	"oraclepair/observability"
	"oraclepair/services/paird/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	TLS           TLSConfig
	Limits        LimitConfig
	// Now is the limiter clock. The engine keeps its own clock.
	Now func() time.Time
}

// TLSConfig describes TLS settings for the listener.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	Config   *tls.Config
}

// Server exposes one pair over HTTP. Engine calls are serialised.
type Server struct {
	cfg      Config
	engine   *pair.Engine
	history  *storage.Storage
	recorder *storage.Recorder
	auth     *Authenticator
	limiter  *CallerLimiter
	logger   *slog.Logger
	now      func() time.Time

	// mu serialises every engine call; the engine is not safe for concurrent use.
	mu sync.Mutex
}

// New constructs a new HTTP server. recorder may be nil when swap receipts
// are not needed.
func New(cfg Config, engine *pair.Engine, history *storage.Storage, recorder *storage.Recorder, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if history == nil {
		return nil, fmt.Errorf("storage required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:      cfg,
		engine:   engine,
		history:  history,
		recorder: recorder,
		auth:     auth,
		limiter:  NewCallerLimiter(cfg.Limits),
		logger:   logger.With(slog.String("component", "paird.http")),
		now:      now,
	}, nil
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pair", s.handlePair)
		r.Get("/price", s.handlePrice)
		r.Post("/quote/exact-in", s.handleQuoteExactIn)
		r.Post("/quote/exact-out", s.handleQuoteExactOut)
		r.Get("/swaps", s.handleListSwaps)
		r.Get("/swaps/{id}", s.handleGetSwap)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.rateLimit)
			r.Post("/swap/exact-in", s.handleSwapExactIn)
			r.Post("/swap/exact-out", s.handleSwapExactOut)
			r.Post("/sync", s.handleSync)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/pause", s.handlePause)
				r.Post("/fees", s.handleFees)
				r.Post("/fee-bounds", s.handleFeeBounds)
				r.Post("/price", s.handleConfigurePrice)
				r.Post("/price-bounds", s.handlePriceBounds)
				r.Post("/receivers", s.handleReceivers)
				r.Post("/swappers", s.handleSwappers)
				r.Post("/withdraw-tokens", s.handleWithdrawTokens)
				r.Post("/withdraw-fees", s.handleWithdrawFees)
			})
		})
	})

	return otelhttp.NewHandler(r, "paird",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		TLSConfig:         s.cfg.TLS.Config,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "listen", s.cfg.ListenAddress)
	var err error
	if strings.TrimSpace(s.cfg.TLS.CertFile) == "" {
		err = srv.ListenAndServe()
	} else {
		err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTP().Observe(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required", "")
			return
		}
		if !s.limiter.Allow(principal.Address, s.now()) {
			observability.HTTP().RecordThrottle("rate_limit")
			writeError(w, r, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// call runs fn while holding the engine lock.
func (s *Server) call(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
