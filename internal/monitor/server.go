package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/engine"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultDepth      = 10
	defaultTradeLimit = 100
	shutdownTimeout   = 5 * time.Second
)

// EngineView is the read-only part of the engine the monitor serves.
type EngineView interface {
	Symbols() []string
	Snapshot(symbol string, depth int) (engine.Snapshot, error)
	Trades(symbol string, limit int) ([]common.Trade, error)
	Quotes() map[string]engine.Quote
	Stats() engine.Stats
}

// Server is the read-only monitoring HTTP surface.
type Server struct {
	view    EngineView
	hub     *Hub
	ticks   map[string]decimal.Decimal
	origins []string
	router  *mux.Router
	metrics *prometheus.Registry
}

// NewServer builds the routes. ticks holds each symbol's tick size, used to
// render prices; symbols without one use common.DefaultTickSize.
func NewServer(view EngineView, hub *Hub, ticks map[string]decimal.Decimal, origins []string) *Server {
	s := &Server{
		view:    view,
		hub:     hub,
		ticks:   ticks,
		origins: origins,
		router:  mux.NewRouter(),
		metrics: prometheus.NewRegistry(),
	}
	s.metrics.MustRegister(NewCollector(view))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/symbols", s.handleSymbols).Methods(http.MethodGet)
	api.HandleFunc("/books/{symbol}", s.handleBook).Methods(http.MethodGet)
	api.HandleFunc("/books/{symbol}/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/ticker", s.handleTicker).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.Handler(s.origins))
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Run serves on addr until the tomb is dying.
func (s *Server) Run(t *tomb.Tomb, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	t.Go(func() error {
		<-t.Dying()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.hub != nil {
			s.hub.Close()
		}
		return srv.Shutdown(ctx)
	})

	log.Info().Str("address", addr).Msg("monitor running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) tick(symbol string) decimal.Decimal {
	if tick, ok := s.ticks[symbol]; ok {
		return tick
	}
	return common.DefaultTickSize
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.view.Symbols()
	out := make([]SymbolInfo, len(symbols))
	for i, symbol := range symbols {
		out[i] = SymbolInfo{Symbol: symbol, TickSize: s.tick(symbol).String()}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	depth, err := queryInt(r, "depth", defaultDepth)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_depth", err.Error())
		return
	}

	snap, err := s.view.Snapshot(symbol, depth)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newBookView(snap, s.tick(symbol)))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit, err := queryInt(r, "limit", defaultTradeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	trades, err := s.view.Trades(symbol, limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	tick := s.tick(symbol)
	out := make([]TradeView, len(trades))
	for i, trade := range trades {
		out[i] = newTradeView(trade, tick)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.view.Quotes())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.view.Stats())
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("unable to write response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func respondEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrUnknownSymbol) {
		respondError(w, http.StatusNotFound, "unknown_symbol", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}
