// Package fleetctl supervises a fixed fleet of local microservice
// processes: start/stop/restart with port reclaim, pid tracking across
// invocations, health probing and discovery-registry reconciliation.
package fleetctl

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkfleet/fleetctl/internal/discovery"
	"github.com/linkfleet/fleetctl/internal/fleet"
	"github.com/linkfleet/fleetctl/internal/health"
	"github.com/linkfleet/fleetctl/internal/history"
	"github.com/linkfleet/fleetctl/internal/orchestrator"
	"github.com/linkfleet/fleetctl/internal/portguard"
	"github.com/linkfleet/fleetctl/internal/proc"
	"github.com/linkfleet/fleetctl/internal/tracker"
)

// Re-export core types for embedding consumers. Aliases, so conversions are
// zero-cost.

type Service = fleet.Service

type Fleet = fleet.Fleet

type Report = orchestrator.Report

type Result = orchestrator.Result

type HealthStatus = health.Status

type Registration = discovery.Registration

type HistoryEvent = history.Event

// DefaultFleet is the built-in seventeen-service platform table.
func DefaultFleet() *Fleet { return fleet.Default() }

// Config assembles a Supervisor with filesystem-backed tracking and real
// process control. Zero values get sensible defaults.
type Config struct {
	Fleet      *Fleet
	ControlDir string
	LogDir     string
	ConsulAddr string
	Env        []string
	Logger     *slog.Logger
	History    history.Store

	SettleDelay          time.Duration
	StopWait             time.Duration
	HealthTimeout        time.Duration
	RegistrationAttempts int
	RegistrationInterval time.Duration
}

// Supervisor is a thin facade over the internal orchestrator.
type Supervisor struct{ inner *orchestrator.Orchestrator }

func New(cfg Config) (*Supervisor, error) {
	if cfg.Fleet == nil {
		cfg.Fleet = fleet.Default()
	}
	inner, err := orchestrator.New(orchestrator.Options{
		Fleet:                cfg.Fleet,
		Tracker:              tracker.NewFileTracker(cfg.ControlDir),
		Control:              proc.NewOSControl(),
		Guard:                portguard.New(),
		Prober:               health.NewProber(cfg.HealthTimeout),
		Reconciler:           discovery.NewReconciler(discovery.NewConsulClient(cfg.ConsulAddr, cfg.HealthTimeout)),
		History:              cfg.History,
		Logger:               cfg.Logger,
		Env:                  cfg.Env,
		LogDir:               cfg.LogDir,
		SettleDelay:          cfg.SettleDelay,
		StopWait:             cfg.StopWait,
		RegistrationAttempts: cfg.RegistrationAttempts,
		RegistrationInterval: cfg.RegistrationInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

func (s *Supervisor) StartAll(ctx context.Context) (Report, error) { return s.inner.StartAll(ctx) }
func (s *Supervisor) StartOne(ctx context.Context, name string) (Report, error) {
	return s.inner.StartOne(ctx, name)
}
func (s *Supervisor) StopAll(ctx context.Context) (Report, error) { return s.inner.StopAll(ctx) }
func (s *Supervisor) StopOne(ctx context.Context, name string) (Report, error) {
	return s.inner.StopOne(ctx, name)
}
func (s *Supervisor) RestartAll(ctx context.Context) (Report, error) { return s.inner.RestartAll(ctx) }
func (s *Supervisor) RestartOne(ctx context.Context, name string) (Report, error) {
	return s.inner.RestartOne(ctx, name)
}
func (s *Supervisor) Dev(ctx context.Context, name string) (Report, error) {
	return s.inner.Dev(ctx, name)
}
func (s *Supervisor) Status(ctx context.Context) Report   { return s.inner.Status(ctx) }
func (s *Supervisor) SelfTest(ctx context.Context) Report { return s.inner.SelfTest(ctx) }

// Orchestrator exposes the inner orchestrator for the HTTP status server.
func (s *Supervisor) Orchestrator() *orchestrator.Orchestrator { return s.inner }

// LogPath returns the append-only log file for a service.
func (s *Supervisor) LogPath(name string) string { return s.inner.LogPath(name) }

// Lookup resolves a service name against the fleet.
func (s *Supervisor) Lookup(name string) (Service, error) { return s.inner.Fleet().Lookup(name) }
