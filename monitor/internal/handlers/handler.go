package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cybermonitor/monitor-stack/common/httputil"
	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/common/messaging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
)

// SubscriberHeader lets a browser name its WebSocket subscriber ID so
// kill failures are pushed to that socket as well.
const SubscriberHeader = "X-Subscriber-ID"

type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error)
}

type SummaryReader interface {
	Summary(ctx context.Context) (*models.AnomalySummary, error)
}

type SessionReporter interface {
	Status() models.SessionStatus
}

type HostReporter interface {
	Info(ctx context.Context) (*models.HostInfo, error)
}

type ProcessKiller interface {
	Kill(ctx context.Context, pid int32, callerID string) (service.KillResult, error)
}

// Pinger reports store reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP API. Summary, Store and
// Broker may be nil when Redis, Postgres or NATS are not configured.
type Deps struct {
	History HistoryLister
	Summary SummaryReader
	Session SessionReporter
	Host    HostReporter
	Killer  ProcessKiller
	Store   Pinger
	Broker  messaging.Client
	Logger  *slog.Logger
}

// MonitorHandler serves the monitor REST API.
type MonitorHandler struct {
	deps   Deps
	logger *slog.Logger
}

func NewMonitorHandler(deps Deps) *MonitorHandler {
	return &MonitorHandler{
		deps:   deps,
		logger: logging.OrDefault(deps.Logger),
	}
}

type anomaliesResponse struct {
	Anomalies []*models.AnomalyEvent `json:"anomalies"`
	Count     int                    `json:"count"`
}

func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports the session state and fails when the store or the
// configured message broker is unreachable.
func (h *MonitorHandler) Ready(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready"}
	if h.deps.Session != nil {
		body["session"] = h.deps.Session.Status().State
	}
	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			body["status"] = "not ready"
			body["error"] = err.Error()
			httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	if h.deps.Broker != nil {
		nats := messaging.CheckClientHealth(r.Context(), h.deps.Broker)
		body["nats"] = nats
		if !nats.Connected {
			body["status"] = "not ready"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// ListAnomalies handles GET /api/v1/anomalies?limit=N.
func (h *MonitorHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}

	events, err := h.deps.History.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list anomalies", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "storage_error", "failed to list anomalies")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, anomaliesResponse{Anomalies: events, Count: len(events)})
}

// AnomalyStats handles GET /api/v1/anomalies/stats.
func (h *MonitorHandler) AnomalyStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Summary == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "stats_disabled", "anomaly statistics are not enabled")
		return
	}
	summary, err := h.deps.Summary.Summary(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read anomaly stats", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "stats_error", "failed to read anomaly statistics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// Session handles GET /api/v1/session.
func (h *MonitorHandler) Session(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Session.Status())
}

// Host handles GET /api/v1/host.
func (h *MonitorHandler) Host(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.Host.Info(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read host info", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "host_error", "failed to read host information")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// KillProcess handles POST /api/v1/processes/{pid}/kill.
func (h *MonitorHandler) KillProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseInt(r.PathValue("pid"), 10, 32)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_pid", "pid must be a positive integer")
		return
	}

	res, err := h.deps.Killer.Kill(r.Context(), int32(pid), r.Header.Get(SubscriberHeader))
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrInvalidPID):
		httputil.WriteJSON(w, http.StatusBadRequest, res)
	case errors.Is(err, service.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		httputil.WriteJSON(w, http.StatusTooManyRequests, res)
	default:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, res)
	}
}
