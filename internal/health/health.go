// Package health serves the worker's read-only health and metrics
// endpoints. The surface is optional: when the configured port is taken
// the worker logs a warning and runs without it.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/helvetia-cloud/worker/internal/clock"
	"github.com/helvetia-cloud/worker/internal/logging"
	"github.com/helvetia-cloud/worker/internal/queue"
)

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// QueueInspector is satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
}

// Server exposes GET /health, GET /metrics and GET /metrics/json.
type Server struct {
	redis   RedisPinger
	queue   QueueInspector
	clk     clock.Clock
	log     *logging.Logger
	mux     *http.ServeMux
	server  *http.Server
	started time.Time
	addr    string
}

// NewServer builds the surface with all routes registered.
func NewServer(r RedisPinger, q QueueInspector, clk clock.Clock, log *logging.Logger) *Server {
	s := &Server{
		redis:   r,
		queue:   q,
		clk:     clk,
		log:     log,
		mux:     http.NewServeMux(),
		started: clk.Now(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /metrics/json", s.handleMetricsJSON)
	return s
}

// Start binds addr and serves in the background. A bind failure disables
// the surface with a warning; the worker keeps running without it.
func (s *Server) Start(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("health surface disabled, port unavailable", "addr", addr, "error", err)
		return
	}
	s.addr = ln.Addr().String()
	s.server = &http.Server{
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.log.Info("health surface listening", "addr", s.addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health surface stopped", "error", err)
		}
	}()
}

// Addr returns the bound address, or "" when the surface is disabled.
func (s *Server) Addr() string { return s.addr }

// Shutdown stops the listener if it is running.
func (s *Server) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	_ = s.server.Shutdown(ctx)
}

type redisBlock struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
}

type queueBlock struct {
	Name      string `json:"name"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

type healthResponse struct {
	Status    string     `json:"status"`
	Uptime    float64    `json:"uptime"`
	Redis     redisBlock `json:"redis"`
	Queue     queueBlock `json:"queue"`
	Timestamp time.Time  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rb := redisBlock{Connected: true, Status: "ok"}
	if err := s.redis.Ping(r.Context()).Err(); err != nil {
		rb = redisBlock{Connected: false, Status: err.Error()}
	}

	// Queue counts are best effort: a broker that has never seen the queue
	// reports no stats, which is not an outage.
	qb := queueBlock{Name: queue.QueueDeployments}
	if info, err := s.queue.GetQueueInfo(queue.QueueDeployments); err == nil {
		qb.Waiting = info.Pending
		qb.Active = info.Active
		qb.Completed = info.Completed
		qb.Failed = info.Failed
	} else {
		s.log.Debug("queue stats unavailable", "error", err)
	}

	resp := healthResponse{
		Status:    "healthy",
		Uptime:    s.clk.Since(s.started).Seconds(),
		Redis:     rb,
		Queue:     qb,
		Timestamp: s.clk.Now().UTC(),
	}
	code := http.StatusOK
	if !rb.Connected {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type metricPoint struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// handleMetricsJSON renders the worker's own metric families as JSON for
// consumers that do not speak the Prometheus text format. Histograms are
// flattened to their _count and _sum series.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, _ *http.Request) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make(map[string][]metricPoint)
	for _, mf := range mfs {
		name := mf.GetName()
		if !strings.HasPrefix(name, "worker_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[name] = append(out[name], metricPoint{Labels: labels, Value: m.GetCounter().GetValue()})
			case m.GetGauge() != nil:
				out[name] = append(out[name], metricPoint{Labels: labels, Value: m.GetGauge().GetValue()})
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				out[name+"_count"] = append(out[name+"_count"], metricPoint{Labels: labels, Value: float64(h.GetSampleCount())})
				out[name+"_sum"] = append(out[name+"_sum"], metricPoint{Labels: labels, Value: h.GetSampleSum()})
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeJSON encodes v as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
