// Package health serves the gateway's HTTP surface: liveness and readiness
// probes plus whatever routes the caller mounts on the shared router.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

// Route names on the server router.
const (
	RouteHealth = "health"
	RouteReady  = "ready"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks readiness. It is safe for concurrent use.
type Checker struct {
	state atomic.Int32
}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

// LivenessHandler always answers 200 {"status":"ok"}.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

// ReadinessHandler answers 200 when ready and 503 while starting or draining.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		code := http.StatusOK
		if !c.IsReady() {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, statusResponse{Status: c.State()})
	}
}

// WriteJSON writes v as the JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the gateway HTTP server. Routes beyond /health and /ready are
// mounted by the caller through Router before Start.
type Server struct {
	checker *Checker
	router  *mux.Router
	server  *http.Server
}

func NewServer(host string, port int, checker *Checker) *Server {
	if checker == nil {
		checker = NewChecker()
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", checker.LivenessHandler()).
		Methods(http.MethodGet, http.MethodHead).
		Name(RouteHealth)
	router.HandleFunc("/ready", checker.ReadinessHandler()).
		Methods(http.MethodGet, http.MethodHead).
		Name(RouteReady)

	return &Server{
		checker: checker,
		router:  router,
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Webhook requests wait for the whole flush before answering.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) Checker() *Checker {
	return s.checker
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Stop. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	logger.InfoCF("health", "HTTP server listening", map[string]any{"addr": s.server.Addr})
	s.checker.SetReady()
	return s.server.ListenAndServe()
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.checker.SetReady()
	return s.server.Serve(ln)
}

func (s *Server) Stop(ctx context.Context) error {
	s.checker.SetDraining()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
