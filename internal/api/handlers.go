package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robert-malhotra/shread/internal/batch"
)

// StatusSource reports the progress of the current run.
type StatusSource interface {
	Snapshot() batch.Snapshot
}

// Handlers contains the HTTP handlers of the status server.
type Handlers struct {
	status   StatusSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewHandlers creates Handlers. A nil gatherer serves the default registry.
func NewHandlers(status StatusSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		status:   status,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Health reports that the process is alive.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the per-product job counts and failures so far.
// GET /status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		WriteNotFound(w, "no run in progress")
		return
	}
	WriteJSON(w, http.StatusOK, h.status.Snapshot())
}

// Metrics serves the Prometheus exposition format.
// GET /metrics
func (h *Handlers) Metrics() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(h.logger.Handler(), slog.LevelError),
	})
}
