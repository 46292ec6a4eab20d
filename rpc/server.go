package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowvault/core/runtime"
	"escrowvault/core/types"
	"escrowvault/gateway/middleware"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Ledger is the node surface the API serves.
type Ledger interface {
	Execute(ctx context.Context, tx *types.Transaction) (*runtime.Receipt, error)
	GetAccount(addr solana.PublicKey) (*types.Account, error)
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	Address           string
	MaxBodyBytes      int64
	RateLimit         middleware.RateLimit
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	LogRequests       bool
}

// Server exposes the ledger over HTTP.
type Server struct {
	ledger Ledger
	cfg    ServerConfig
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// NewServer builds the router. Call Start to listen.
func NewServer(ledger Ledger, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{ledger: ledger, cfg: cfg, logger: logger}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"transactions": s.cfg.RateLimit,
		"queries":      s.cfg.RateLimit,
	}, s.logger)
	obs := middleware.NewObservability(s.logger, s.cfg.LogRequests)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(limiter.Middleware("transactions")).Post("/transactions", s.handleSubmitTransaction)
		v1.Group(func(q chi.Router) {
			q.Use(limiter.Middleware("queries"))
			q.Get("/accounts/{address}", s.handleGetAccount)
			q.Get("/offers/{address}", s.handleGetOffer)
			q.Get("/makers/{maker}/offers/{id}", s.handleGetOfferByMaker)
			q.Get("/tokens/{address}", s.handleGetTokenAccount)
			q.Get("/tokens/{wallet}/{mint}", s.handleGetWalletBalance)
			q.Get("/favorites/{owner}", s.handleGetFavorites)
		})
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info("api listening", slog.String("address", s.cfg.Address))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
