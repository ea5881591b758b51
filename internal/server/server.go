package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"certmint/internal/access"
	"certmint/internal/config"
	"certmint/internal/hmacauth"
	"certmint/internal/ledger"
	"certmint/internal/minting"
	"certmint/internal/store"
)

// Certifier is the slice of the minting controller the HTTP layer needs.
type Certifier interface {
	RequestCertification(ctx context.Context, req minting.Request) (*minting.Result, error)
}

type Server struct {
	cfg       *config.AppConfig
	certifier Certifier
	store     store.AssetStore
	metrics   *minting.Metrics
	hookHMAC  *hmacauth.Verifier

	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error

	httpServer *http.Server
	log        zerolog.Logger
}

func New(
	cfg *config.AppConfig,
	certifier Certifier,
	assets store.AssetStore,
	verifier *access.TokenVerifier,
	metrics *minting.Metrics,
	ledgers map[string]ledger.Client,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		certifier: certifier,
		store:     assets,
		metrics:   metrics,
		hookHMAC: &hmacauth.Verifier{
			Secret:  cfg.Secrets.HookHMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		log: logger,
	}

	if checker, ok := assets.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if cli, ok := ledgers[cfg.DefaultChain]; ok {
		if checker, ok := cli.(ledger.HealthChecker); ok {
			s.rpcHealthFn = checker.Ping
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(access.RequireAuth(verifier, logger))
			r.Post("/assets/{assetID}/certify", s.handleCertify)
			r.Get("/assets/{assetID}/certificate", s.handleCertificate)
		})

		r.Method(http.MethodPost, "/hooks/ingestion",
			s.hookHMAC.Middleware(http.HandlerFunc(s.handleIngestionHook)))

		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		r.Get("/health", s.handleHealth)
	})

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string `json:"status"`
		RPC      any    `json:"rpc"`
		Database any    `json:"database"`
	}{
		Status:   status,
		RPC:      rpcInfo,
		Database: dbInfo,
	})
}
