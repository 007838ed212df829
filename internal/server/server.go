// Package server exposes the refresh pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"holdings-tracker/internal/config"
	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/models"
	"holdings-tracker/internal/pipeline"
	"holdings-tracker/internal/resilience"
	"holdings-tracker/internal/scheduler"
	"holdings-tracker/internal/stream"
	"holdings-tracker/pkg/utils"
)

// FetchFailedMessage is the only detail a caller sees for an unexpected fault.
const FetchFailedMessage = "Failed to fetch stock data"

// maxBodyBytes bounds an inbound basket request.
const maxBodyBytes = 64 << 10

// Quotes serves basket and single-symbol requests. *pipeline.Service satisfies it.
type Quotes interface {
	FetchBasket(ctx context.Context, items []models.BasketItem) (*models.BasketResponse, error)
	FetchSymbol(ctx context.Context, symbol, exchange string) (*models.BasketResponse, error)
}

// Portfolio exposes the scheduled portfolio. *scheduler.Scheduler satisfies it.
type Portfolio interface {
	Latest() (*models.PortfolioSnapshot, bool)
	RefreshNow(ctx context.Context) (*models.PortfolioSnapshot, error)
	Status() scheduler.Status
}

// RunHistory lists recorded passes. *store.SQLiteStore satisfies it.
type RunHistory interface {
	LastRun(ctx context.Context) (*models.RefreshRun, error)
}

// Stream hands out live event subscriptions. *stream.Hub satisfies it.
type Stream interface {
	Subscribe() (<-chan stream.Event, func())
}

// Deps are the collaborators the handlers call. Runs, Events and Breakers
// may be nil.
type Deps struct {
	Quotes    Quotes
	Portfolio Portfolio
	Runs      RunHistory
	Events    Stream
	Breakers  *resilience.CircuitBreakerRegistry
}

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Scheduler    scheduler.Status                 `json:"scheduler"`
	LastRun      *models.RefreshRun               `json:"last_run,omitempty"`
	MarketStatus models.MarketStatus              `json:"market_status"`
	Breakers     []resilience.CircuitBreakerStats `json:"breakers,omitempty"`
	ServerTime   time.Time                        `json:"server_time"`
}

// New creates a configured API server with all routes and middleware.
func New(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.WithOperation(logger, "http"),
		now:    time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/stocks", s.handleBasket)
		r.Get("/stocks", s.handleSymbol)
		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/portfolio/refresh", s.handleRefresh)
		r.Get("/status", s.handleStatus)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var err error
		if ww.Status() >= http.StatusInternalServerError {
			err = errors.New(http.StatusText(ww.Status()))
		}
		logging.LogAPICall(reqLogger, r.Method, r.URL.Path, time.Since(start), err)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"market_status": utils.MarketStatusAt(s.now()),
		"time":          s.now().UTC(),
	})
}

func (s *Server) handleBasket(w http.ResponseWriter, r *http.Request) {
	var req models.BasketRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, err := pipeline.ParseBasket(req.Stocks)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.deps.Quotes.FetchBasket(r.Context(), items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.deps.Quotes.FetchSymbol(r.Context(), q.Get("symbol"), q.Get("exchange"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Portfolio.Latest()
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(1))
		writeError(w, http.StatusServiceUnavailable, "portfolio not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Portfolio.RefreshNow(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Scheduler:    s.deps.Portfolio.Status(),
		MarketStatus: utils.MarketStatusAt(s.now()),
		ServerTime:   s.now().UTC(),
	}
	if s.deps.Runs != nil {
		last, err := s.deps.Runs.LastRun(r.Context())
		if err != nil {
			l := logging.FromContext(r.Context())
			l.Warn().Err(err).Msg("Failed to read last run")
		}
		resp.LastRun = last
	}
	if s.deps.Breakers != nil {
		resp.Breakers = s.deps.Breakers.AllStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps err to a status: caller mistakes get 400 with the validation
// message, anything else 500 with a fixed message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.IsClientError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l := logging.FromContext(r.Context())
	l.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, FetchFailedMessage)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
