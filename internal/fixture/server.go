// Package fixture is a development walker endpoint. It answers the fixed set
// of WasteLink walkers over HTTP and WebSocket from a backend; it is not a
// general graph execution engine.
package fixture

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wastelink/internal/auth"
	"wastelink/internal/backend"
	"wastelink/internal/metrics"
	"wastelink/internal/notify"
)

// EventsTopic is the broker topic entity changes are published on.
const EventsTopic = "events"

type Server struct {
	Backend backend.Backend
	Auth    *auth.Verifier
	Broker  notify.EventBroker
	Log     *zap.Logger
	Now     func() time.Time

	walkers map[string]walkerFunc
	lastID  atomic.Int64
}

func NewServer(b backend.Backend, v *auth.Verifier, broker notify.EventBroker, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if broker == nil {
		broker = notify.NewBroker()
	}
	if v == nil {
		v = auth.NewVerifier("dev", "")
	}
	s := &Server{Backend: b, Auth: v, Broker: broker, Log: log, Now: time.Now}
	s.walkers = s.walkerTable()
	return s
}

// Routes returns the full HTTP surface wrapped in access logging and metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Walker protocol
	mux.HandleFunc("POST /v1/walkers/{name}/spawn", s.SpawnHandler)
	mux.HandleFunc("POST /v1/nodes/{id}/walkers/{name}", s.RunHandler)
	mux.HandleFunc("POST /v1/nodes", s.NodesHandler)
	mux.HandleFunc("GET /v1/ws", s.WSHandler)

	// Change feed
	mux.HandleFunc("GET /v1/events/stream", s.EventsStreamHandler)

	// Health and ops
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/vars", s.DebugJSON)

	return s.accessLog(mux)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Backend.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// nextID returns prefix_<unix-nanos>, strictly increasing across calls.
func (s *Server) nextID(prefix string) string {
	for {
		last := s.lastID.Load()
		n := s.Now().UnixNano()
		if n <= last {
			n = last + 1
		}
		if s.lastID.CompareAndSwap(last, n) {
			return prefix + "_" + itoa(n)
		}
	}
}

func (s *Server) publish(typ string, data map[string]any) {
	s.Broker.Publish(EventsTopic, notify.Event{Type: typ, Data: data})
}
