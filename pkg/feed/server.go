package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source is the read-only view of the engine the feed serves.
type Source interface {
	Depth() orderbook.Depth
	LastReport() *auction.BatchReport
	State() auction.State
}

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

type LevelView struct {
	Price  decimal.Decimal `json:"price"`
	Qty    int64           `json:"qty"`
	Orders int             `json:"orders"`
}

type BookView struct {
	State string      `json:"state"`
	Bids  []LevelView `json:"bids"`
	Asks  []LevelView `json:"asks"`
}

// Server exposes the book, the last round, a websocket stream of rounds and
// the metrics endpoint.
type Server struct {
	cfg      Config
	source   Source
	hub      *Hub
	router   *mux.Router
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewServer(cfg Config, source Source, metricsHandler http.Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		cfg:    cfg,
		source: source,
		hub:    NewHub(logger),
		router: mux.NewRouter(),
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/book", s.handleBook).Methods(http.MethodGet)
	api.HandleFunc("/rounds/latest", s.handleLatestRound).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.serveWS(&s.upgrader, w, r, Envelope{Type: "hello", Data: s.source.LastReport()})
	})
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	return s
}

// Publish is the report callback feeding websocket clients.
func (s *Server) Publish(r *auction.BatchReport) {
	s.hub.Publish(r)
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Serve runs the hub and the HTTP server until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "feed listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds cfg.ListenAddr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	depth := s.source.Depth()
	writeJSON(w, http.StatusOK, BookView{
		State: s.source.State().String(),
		Bids:  levelViews(depth.Bids, depth.Scale),
		Asks:  levelViews(depth.Asks, depth.Scale),
	})
}

func (s *Server) handleLatestRound(w http.ResponseWriter, r *http.Request) {
	report := s.source.LastReport()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no round settled yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.source.State()
	status := http.StatusOK
	if state == auction.Halted {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": state.String()})
}

func levelViews(levels []orderbook.Level, scale int32) []LevelView {
	out := make([]LevelView, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelView{Price: decimal.New(l.Price, -scale), Qty: l.Qty, Orders: l.Orders})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
