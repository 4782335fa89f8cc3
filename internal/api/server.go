package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"stakeScope/internal/model"
	"stakeScope/internal/watch"
)

// Watcher is the part of watch.Watcher the HTTP surface drives.
type Watcher interface {
	Set(params watch.Params) uint64
	Refresh() uint64
	Params() (watch.Params, bool)
	Latest() []model.StakedToken
	Generation() uint64
}

// Server exposes the latest positions over HTTP.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	watcher Watcher
	logger  *zap.Logger
}

// New creates a server listening on addr.
func New(addr string, watcher Watcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  chi.NewRouter(),
		watcher: watcher,
		logger:  logger.With(zap.String("component", "api")),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server start", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutdown")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/positions", s.handlePositions)
		r.Put("/params", s.handleSetParams)
		r.Post("/refresh", s.handleRefresh)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Generation", strconv.FormatUint(s.watcher.Generation(), 10))
	s.writeJSON(w, http.StatusOK, s.watcher.Latest())
}

type paramsRequest struct {
	StakingPool     string `json:"staking_pool"`
	VaultUnderlying string `json:"vault_underlying"`
	VaultShare      string `json:"vault_share"`
	Account         string `json:"account"`
}

type generationResponse struct {
	Generation uint64 `json:"generation"`
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var params watch.Params
	fields := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"staking_pool", req.StakingPool, &params.StakingPool},
		{"vault_underlying", req.VaultUnderlying, &params.VaultUnderlying},
		{"vault_share", req.VaultShare, &params.VaultShare},
		{"account", req.Account, &params.Account},
	}
	for _, field := range fields {
		value := strings.TrimSpace(field.value)
		if value == "" {
			continue
		}
		if !common.IsHexAddress(value) {
			s.writeError(w, http.StatusBadRequest, "invalid address for "+field.name)
			return
		}
		*field.dst = common.HexToAddress(value)
	}

	gen := s.watcher.Set(params)
	s.logger.Info("params updated", zap.String("account", params.Account.Hex()), zap.Uint64("generation", gen))
	s.writeJSON(w, http.StatusAccepted, generationResponse{Generation: gen})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.watcher.Params(); !ok {
		s.writeError(w, http.StatusConflict, "params not set")
		return
	}
	s.writeJSON(w, http.StatusAccepted, generationResponse{Generation: s.watcher.Refresh()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
