// Package server exposes schedules, jobs and host status over HTTP, and
// streams job updates to websocket clients.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/janitor"
	"github.com/buzzsnip/buzzsnip/pulse/schedule"
)

const (
	// ShutdownTimeout bounds graceful shutdown of the HTTP listener
	ShutdownTimeout = 10 * time.Second

	// DefaultWaitTimeout caps how long ?wait=true holds a request open
	DefaultWaitTimeout = 10 * time.Minute

	readHeaderTimeout = 10 * time.Second
)

// ServerState tracks the server lifecycle
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Deps are the components behind the API. Schedules and Jobs are required.
type Deps struct {
	Schedules *schedule.Manager
	Jobs      *async.Manager

	Pool    *async.WorkerPool // worker counts and host metrics for admin status
	Ticker  *schedule.Ticker
	Janitor *janitor.Janitor

	// Gatherer serves /metrics; nil means the default Prometheus registry
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	DataDir        string
	WaitTimeout    time.Duration
}

// Server is the BuzzSnip HTTP API
type Server struct {
	deps    Deps
	logger  *zap.SugaredLogger
	handler http.Handler
	hub     *Hub
	started time.Time

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
}

// New builds the server and its routes. The job-update hub starts immediately
// and stops when ctx ends or Shutdown is called.
func New(ctx context.Context, deps Deps, log *zap.SugaredLogger) (*Server, error) {
	if deps.Schedules == nil {
		return nil, errors.New("server requires a schedule manager")
	}
	if deps.Jobs == nil {
		return nil, errors.New("server requires a job manager")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.WaitTimeout <= 0 {
		deps.WaitTimeout = DefaultWaitTimeout
	}
	if log == nil {
		log = logger.Logger
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		deps:    deps,
		logger:  log.Named("server"),
		started: time.Now(),
		ctx:     serverCtx,
		cancel:  cancel,
	}
	s.hub = newHub(deps.Jobs, deps.AllowedOrigins, s.logger)
	s.handler = s.routes()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.run(serverCtx)
	}()

	s.setState(ServerStateRunning)
	return s, nil
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) getState() ServerState { return ServerState(s.state.Load()) }

func (s *Server) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Debugw("Server state changed", "state", state.String())
}

// ListenAndServe serves on addr until Shutdown. Returns nil after a graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldAddress, ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Addr returns the address the server is listening on, or "" before Serve
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Shutdown drains in-flight requests, closes websocket clients and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown incomplete")
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnw("Websocket hub shutdown timed out")
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.hub.drops.Load())
	return shutdownErr
}
