package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cybermonitor/monitor-stack/common/httputil"
	"github.com/cybermonitor/monitor-stack/common/messaging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
)

// Mock collaborators for testing

type mockHistory struct {
	events    []*models.AnomalyEvent
	err       error
	lastLimit int
}

func (m *mockHistory) ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error) {
	m.lastLimit = limit
	return m.events, m.err
}

type mockSummary struct {
	summary *models.AnomalySummary
	err     error
}

func (m *mockSummary) Summary(ctx context.Context) (*models.AnomalySummary, error) {
	return m.summary, m.err
}

type mockSession struct {
	status models.SessionStatus
}

func (m *mockSession) Status() models.SessionStatus { return m.status }

type mockHost struct {
	info *models.HostInfo
	err  error
}

func (m *mockHost) Info(ctx context.Context) (*models.HostInfo, error) { return m.info, m.err }

type mockKiller struct {
	killFunc   func(pid int32, callerID string) (service.KillResult, error)
	lastCaller string
}

func (m *mockKiller) Kill(ctx context.Context, pid int32, callerID string) (service.KillResult, error) {
	m.lastCaller = callerID
	return m.killFunc(pid, callerID)
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockBroker struct {
	connected bool
}

func (m *mockBroker) Publish(context.Context, string, []byte, ...messaging.PublishOption) error {
	return nil
}

func (m *mockBroker) Request(context.Context, string, []byte, time.Duration) (*messaging.Message, error) {
	return nil, errors.New("nats: no responders available for request")
}

func (m *mockBroker) Close() error { return nil }

func (m *mockBroker) Subscribe(string, messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBroker) Respond(context.Context, *messaging.Message, []byte) error { return nil }
func (m *mockBroker) Drain() error                                              { return nil }
func (m *mockBroker) IsConnected() bool                                         { return m.connected }

func TestListAnomalies(t *testing.T) {
	observed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	history := &mockHistory{events: []*models.AnomalyEvent{
		{ID: 2, Category: "CPU", Severity: "CRITICAL", Message: "CPU at 95%", ObservedAt: observed},
		{ID: 1, Category: "DISK", Severity: "WARNING", Message: "disk 91% full", ObservedAt: observed.Add(-time.Minute)},
	}}
	handler := NewMonitorHandler(Deps{History: history})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?limit=2", nil)
	rr := httptest.NewRecorder()
	handler.ListAnomalies(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if history.lastLimit != 2 {
		t.Errorf("Expected limit 2, got %d", history.lastLimit)
	}

	var resp struct {
		Anomalies []map[string]any `json:"anomalies"`
		Count     int              `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Expected count 2, got %d", resp.Count)
	}
	first := resp.Anomalies[0]
	if first["category"] != "CPU" || first["severity"] != "CRITICAL" || first["message"] != "CPU at 95%" {
		t.Errorf("Unexpected first anomaly: %v", first)
	}
	if first["observed_at"] != "2024-05-01T09:30:00Z" {
		t.Errorf("Unexpected observed_at: %v", first["observed_at"])
	}
}

func TestListAnomalies_DefaultLimit(t *testing.T) {
	history := &mockHistory{}
	handler := NewMonitorHandler(Deps{History: history})

	rr := httptest.NewRecorder()
	handler.ListAnomalies(rr, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if history.lastLimit != 0 {
		t.Errorf("Expected limit to be left to the service, got %d", history.lastLimit)
	}
}

func TestListAnomalies_Errors(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		history    *mockHistory
		wantStatus int
		wantCode   string
	}{
		{"bad limit", "/api/v1/anomalies?limit=ten", &mockHistory{}, http.StatusBadRequest, "invalid_limit"},
		{"store failure", "/api/v1/anomalies", &mockHistory{err: errors.New("db down")}, http.StatusInternalServerError, "storage_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewMonitorHandler(Deps{History: tt.history})
			rr := httptest.NewRecorder()
			handler.ListAnomalies(rr, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			var resp httputil.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestAnomalyStats(t *testing.T) {
	summary := &models.AnomalySummary{
		Total:      5,
		ByCategory: map[string]int64{"CPU": 3, "DISK": 2},
		BySeverity: map[string]int64{"CRITICAL": 1, "WARNING": 4},
	}
	handler := NewMonitorHandler(Deps{Summary: &mockSummary{summary: summary}})

	rr := httptest.NewRecorder()
	handler.AnomalyStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var got models.AnomalySummary
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Total != 5 || got.ByCategory["CPU"] != 3 {
		t.Errorf("Unexpected summary: %+v", got)
	}
}

func TestAnomalyStats_Unavailable(t *testing.T) {
	tests := []struct {
		name       string
		deps       Deps
		wantStatus int
	}{
		{"disabled", Deps{}, http.StatusServiceUnavailable},
		{"redis error", Deps{Summary: &mockSummary{err: errors.New("redis: connection refused")}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewMonitorHandler(tt.deps).AnomalyStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/stats", nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

func TestSession(t *testing.T) {
	code := 0
	session := &mockSession{status: models.SessionStatus{
		State:       "terminated",
		PID:         4321,
		ExitCode:    &code,
		Lines:       120,
		Broadcasts:  118,
		Anomalies:   3,
		Subscribers: 2,
	}}
	handler := NewMonitorHandler(Deps{Session: session})

	rr := httptest.NewRecorder()
	handler.Session(rr, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["state"] != "terminated" {
		t.Errorf("Expected state terminated, got %v", got["state"])
	}
	if got["anomalies_stored"] != float64(3) {
		t.Errorf("Expected anomalies_stored 3, got %v", got["anomalies_stored"])
	}
}

func TestHost(t *testing.T) {
	handler := NewMonitorHandler(Deps{Host: &mockHost{info: &models.HostInfo{Hostname: "sensor-01", OS: "linux"}}})
	rr := httptest.NewRecorder()
	handler.Host(rr, httptest.NewRequest(http.MethodGet, "/api/v1/host", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	failing := NewMonitorHandler(Deps{Host: &mockHost{err: errors.New("no /proc")}})
	rr = httptest.NewRecorder()
	failing.Host(rr, httptest.NewRequest(http.MethodGet, "/api/v1/host", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
}

func TestKillProcess(t *testing.T) {
	tests := []struct {
		name       string
		pid        string
		killErr    error
		wantStatus int
		wantCalled bool
	}{
		{"success", "1234", nil, http.StatusOK, true},
		{"not a number", "abc", nil, http.StatusBadRequest, false},
		{"out of range", "99999999999", nil, http.StatusBadRequest, false},
		{"invalid pid", "0", service.ErrInvalidPID, http.StatusBadRequest, true},
		{"rate limited", "1234", service.ErrRateLimited, http.StatusTooManyRequests, true},
		{"kill failed", "1", errors.New("operation not permitted"), http.StatusUnprocessableEntity, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			killer := &mockKiller{killFunc: func(pid int32, callerID string) (service.KillResult, error) {
				called = true
				res := service.KillResult{PID: pid, Success: tt.killErr == nil}
				if tt.killErr != nil {
					return res, fmt.Errorf("kill process %d: %w", pid, tt.killErr)
				}
				return res, nil
			}}
			handler := NewMonitorHandler(Deps{Killer: killer})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/processes/"+tt.pid+"/kill", nil)
			req.SetPathValue("pid", tt.pid)
			req.Header.Set(SubscriberHeader, "sock-1")
			rr := httptest.NewRecorder()
			handler.KillProcess(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("Expected killer called=%v, got %v", tt.wantCalled, called)
			}
			if called && killer.lastCaller != "sock-1" {
				t.Errorf("Expected caller sock-1, got %q", killer.lastCaller)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	handler := NewMonitorHandler(Deps{
		Session: &mockSession{status: models.SessionStatus{State: "running"}},
		Store:   &mockPinger{},
	})

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["session"] != "running" {
		t.Errorf("Expected session running, got %v", body["session"])
	}

	notReady := NewMonitorHandler(Deps{Store: &mockPinger{err: errors.New("pool closed")}})
	rr = httptest.NewRecorder()
	notReady.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestReady_Broker(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus int
	}{
		{name: "connected", connected: true, wantStatus: http.StatusOK},
		{name: "disconnected", connected: false, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewMonitorHandler(Deps{
				Store:  &mockPinger{},
				Broker: &mockBroker{connected: tt.connected},
			})

			rr := httptest.NewRecorder()
			handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}

			var body struct {
				Status string                 `json:"status"`
				NATS   messaging.HealthStatus `json:"nats"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.NATS.Connected != tt.connected {
				t.Errorf("Expected nats connected=%v, got %v", tt.connected, body.NATS.Connected)
			}
			if !tt.connected && body.NATS.Error == "" {
				t.Error("Expected nats error for a disconnected broker")
			}
		})
	}
}
