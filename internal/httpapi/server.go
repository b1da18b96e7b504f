// Package httpapi exposes the operational surface of a bgpview-replicator
// process: liveness/readiness probes, Prometheus metrics, and a listing of
// producers known to the optional members registry.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BrokerStatus reports whether a component has an established, healthy
// connection to the broker (producer publisher or consumer receiver).
type BrokerStatus interface {
	Ready() bool
}

// Registry abstracts the members registry for the producer-listing
// endpoint, so the server can be tested without a real Postgres pool.
type Registry interface {
	ListActive(ctx context.Context) ([]Member, error)
	Ping(ctx context.Context) error
}

// Member mirrors one row of the members registry: an identity and when it
// was last seen on the members heartbeat stream.
type Member struct {
	Identity string    `json:"identity"`
	LastSeen time.Time `json:"last_seen"`
}

type Server struct {
	srv      *http.Server
	registry Registry
	broker   BrokerStatus
	logger   *zap.Logger
}

// NewServer wires healthz/readyz/metrics/producers endpoints. registry may
// be nil if the members registry is disabled (SPEC_FULL.md §9); readyz
// then reports "registry": "disabled" rather than failing.
func NewServer(addr string, registry Registry, broker BrokerStatus, logger *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		broker:   broker,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/producers", s.handleProducers)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.broker != nil && s.broker.Ready() {
		checks["broker"] = "ok"
	} else {
		checks["broker"] = "not_ready"
		allOK = false
	}

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.registry.Ping(ctx); err != nil {
			checks["registry"] = "error"
			allOK = false
		} else {
			checks["registry"] = "ok"
		}
	} else {
		checks["registry"] = "disabled"
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleProducers(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, "members registry is disabled", http.StatusNotImplemented)
		return
	}
	members, err := s.registry.ListActive(r.Context())
	if err != nil {
		s.logger.Error("listing active producers", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}
