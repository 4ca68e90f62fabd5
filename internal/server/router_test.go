package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linkfleet/fleetctl/internal/discovery"
	"github.com/linkfleet/fleetctl/internal/fleet"
	"github.com/linkfleet/fleetctl/internal/health"
	"github.com/linkfleet/fleetctl/internal/orchestrator"
	"github.com/linkfleet/fleetctl/internal/proc"
	"github.com/linkfleet/fleetctl/internal/tracker"
)

type stubControl struct{ alive bool }

func (c stubControl) Spawn(proc.SpawnSpec) (int, error) { return 0, nil }
func (c stubControl) Alive(int) bool                    { return c.alive }
func (c stubControl) Terminate(int) error               { return nil }
func (c stubControl) Kill(int) error                    { return nil }

type stubGuard struct{}

func (stubGuard) IsBound(int) bool          { return false }
func (stubGuard) Reclaim(int) (bool, error) { return false, nil }

type stubProber struct{}

func (stubProber) Probe(context.Context, int) health.Status { return health.Unreachable }

type stubConfirmer struct{}

func (stubConfirmer) ConfirmRegistration(context.Context, string, int, time.Duration) discovery.Registration {
	return discovery.NotRegistered
}

func testOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	return orchestratorWith(t, stubControl{}, tracker.NewMemTracker())
}

func orchestratorWith(t *testing.T, ctl stubControl, tr *tracker.MemTracker) *orchestrator.Orchestrator {
	t.Helper()
	fl, err := fleet.New([]fleet.Service{
		{Name: "auth_service", Port: 8202, Command: "run"},
		{Name: "order_service", Port: 8210, Command: "run"},
	})
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.Options{
		Fleet:      fl,
		Tracker:    tr,
		Control:    ctl,
		Guard:      stubGuard{},
		Prober:     stubProber{},
		Reconciler: stubConfirmer{},
		Logger:     slog.New(slog.DiscardHandler),
		Sleep:      func(time.Duration) {},
	})
	require.NoError(t, err)
	return orch
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	rec := doGet(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFleetEndpoint(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	rec := doGet(t, h, "/api/fleet")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Services []fleet.Service `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Services, 2)
	require.Equal(t, "auth_service", body.Services[0].Name)
	require.Equal(t, 8202, body.Services[0].Port)
}

func TestStatusEndpoint(t *testing.T) {
	// auth_service has a live tracked pid; its health probe is unreachable
	// and the registry never lists it. order_service was never started.
	tr := tracker.NewMemTracker()
	require.NoError(t, tr.Record("auth_service", 4242))
	h := NewRouter(orchestratorWith(t, stubControl{alive: true}, tr), "").Handler()
	rec := doGet(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []struct {
			Service      fleet.Service `json:"service"`
			State        string        `json:"state"`
			PID          int           `json:"pid"`
			Health       string        `json:"health"`
			Registration string        `json:"registration"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)

	auth := body.Results[0]
	require.Equal(t, "degraded", auth.State)
	require.Equal(t, 4242, auth.PID)
	require.Equal(t, "unreachable", auth.Health)
	require.Equal(t, "not registered", auth.Registration)

	order := body.Results[1]
	require.Equal(t, "stopped", order.State)
	require.Empty(t, order.Health)
	require.Empty(t, order.Registration)
}

func TestBasePathMounting(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "/fleet/").Handler()
	require.Equal(t, http.StatusOK, doGet(t, h, "/fleet/healthz").Code)
	require.Equal(t, http.StatusNotFound, doGet(t, h, "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewRouter(testOrchestrator(t), "").Handler()
	rec := doGet(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
