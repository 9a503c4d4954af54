package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
)

const (
	READ_HEADER_TIMEOUT = 5 * time.Second
	READ_TIMEOUT        = 10 * time.Second
	WRITE_TIMEOUT       = 30 * time.Second
	IDLE_TIMEOUT        = 60 * time.Second
)

type RouterOptions struct {
	// AccessLog receives one combined log line per request. Nil disables it.
	AccessLog io.Writer
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	api.HandleFunc("/toggle-connection", h.ToggleConnection).Methods(http.MethodPost)
	api.HandleFunc("/latest", h.Latest).Methods(http.MethodGet)
	api.HandleFunc("/readings", h.ListReadings).Methods(http.MethodGet)
	api.HandleFunc("/statistics/today", h.StatisticsToday).Methods(http.MethodGet)
	api.HandleFunc("/statistics/{date}", h.StatisticsForDate).Methods(http.MethodGet)
	api.HandleFunc("/history/{hours}", h.History).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	handler := opts.Metrics.Wrap(r)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: h.Log}),
		handlers.PrintRecoveryStack(false),
	)(handler)
	if opts.AccessLog != nil {
		handler = handlers.CombinedLoggingHandler(opts.AccessLog, handler)
	}

	return handler
}

// recoveryLogger sends recovered handler panics to slog.
type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("Recovered from handler panic", "panic", fmt.Sprint(v...))
}

type Server struct {
	HTTP           *http.Server
	Log            *slog.Logger
	MaxConnections int
}

func NewServer(addr string, maxConnections int, log *slog.Logger, handler http.Handler) *Server {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: READ_HEADER_TIMEOUT,
		ReadTimeout:       READ_TIMEOUT,
		WriteTimeout:      WRITE_TIMEOUT,
		IdleTimeout:       IDLE_TIMEOUT,
	}

	return &Server{HTTP: hs, Log: log, MaxConnections: maxConnections}
}

// Listen binds the server address. With MaxConnections > 0 the listener
// accepts at most that many simultaneous connections.
func (s *Server) Listen() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.HTTP.Addr, err)
	}

	if s.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.MaxConnections)
	}

	return listener, nil
}

// Serve blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Serve(listener net.Listener) error {
	s.Log.Info("HTTP server starting", "addr", listener.Addr().String(), "max_connections", s.MaxConnections)

	if err := s.HTTP.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.Log.Info("HTTP server stopping")
	return s.HTTP.Shutdown(ctx)
}
