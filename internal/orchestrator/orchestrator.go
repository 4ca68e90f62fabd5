package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/linkfleet/fleetctl/internal/discovery"
	"github.com/linkfleet/fleetctl/internal/fleet"
	"github.com/linkfleet/fleetctl/internal/health"
	"github.com/linkfleet/fleetctl/internal/history"
	"github.com/linkfleet/fleetctl/internal/metrics"
	"github.com/linkfleet/fleetctl/internal/proc"
	"github.com/linkfleet/fleetctl/internal/tracker"
)

// ErrPortBusy marks a launch skipped because the target port was still
// bound after reclaim (another process raced in). Not retried automatically.
var ErrPortBusy = errors.New("port still bound after reclaim")

// PortGuard is the subset of portguard.Guard the state machine needs.
type PortGuard interface {
	IsBound(port int) bool
	// Reclaim reports whether an occupant was actually killed.
	Reclaim(port int) (bool, error)
}

// HealthProber issues a single bounded health probe.
type HealthProber interface {
	Probe(ctx context.Context, port int) health.Status
}

// RegistrationConfirmer polls the discovery registry for a service's
// self-registration.
type RegistrationConfirmer interface {
	ConfirmRegistration(ctx context.Context, name string, maxAttempts int, interval time.Duration) discovery.Registration
}

// Options wires the orchestrator's collaborators. Fleet, Tracker, Control,
// Guard, Prober and Reconciler are required; History is optional.
type Options struct {
	Fleet      *fleet.Fleet
	Tracker    tracker.Tracker
	Control    proc.Control
	Guard      PortGuard
	Prober     HealthProber
	Reconciler RegistrationConfirmer
	History    history.Store
	Logger     *slog.Logger

	// Env is the merged environment handed to every spawned service.
	Env []string
	// LogDir receives one append-only <name>.log per service.
	LogDir string

	// SettleDelay is the fixed wait between launch and the health probe.
	SettleDelay time.Duration
	// StopWait bounds how long a stop waits for graceful termination
	// before escalating to SIGKILL.
	StopWait time.Duration
	// RegistrationAttempts/RegistrationInterval parameterize the bounded
	// registry poll after a healthy launch.
	RegistrationAttempts int
	RegistrationInterval time.Duration
	// Sleep is injectable for tests; nil uses time.Sleep.
	Sleep func(time.Duration)
}

// Orchestrator sequences the per-service lifecycle state machine
// (Stopping -> PortCheck -> Launching -> AwaitingHealth ->
// AwaitingRegistration -> Ready|Degraded) and aggregates fleet reports.
// Fleet operations run sequentially in registry order so log output stays
// deterministic and non-interleaved.
type Orchestrator struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Fleet == nil {
		return nil, errors.New("orchestrator: fleet is required")
	}
	if opts.Tracker == nil || opts.Control == nil || opts.Guard == nil {
		return nil, errors.New("orchestrator: tracker, control and guard are required")
	}
	if opts.Prober == nil || opts.Reconciler == nil {
		return nil, errors.New("orchestrator: prober and reconciler are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	if opts.StopWait <= 0 {
		opts.StopWait = 3 * time.Second
	}
	if opts.RegistrationAttempts <= 0 {
		opts.RegistrationAttempts = 5
	}
	if opts.RegistrationInterval <= 0 {
		opts.RegistrationInterval = 2 * time.Second
	}
	return &Orchestrator{opts: opts, log: opts.Logger}, nil
}

// Fleet exposes the ordered service table.
func (o *Orchestrator) Fleet() *fleet.Fleet { return o.opts.Fleet }

// LogPath returns the append-only log file for a service.
func (o *Orchestrator) LogPath(name string) string {
	return filepath.Join(o.opts.LogDir, name+".log")
}

// StartAll runs the start state machine for every service in registry
// order. One service's failure never aborts the fleet; every service is
// attempted exactly once. If ctx is cancelled mid-fleet, the services
// processed so far are stopped again before returning (guaranteed cleanup),
// and ctx.Err() is returned alongside the partial report.
func (o *Orchestrator) StartAll(ctx context.Context) (Report, error) {
	report := Report{}
	for _, svc := range o.opts.Fleet.Services() {
		if ctx.Err() != nil {
			o.log.Warn("interrupted, stopping fleet")
			o.cleanupAfterInterrupt()
			return report, ctx.Err()
		}
		report.Results = append(report.Results, o.startService(ctx, svc, false))
	}
	if err := ctx.Err(); err != nil {
		o.cleanupAfterInterrupt()
		return report, err
	}
	return report, nil
}

// StartOne runs the start state machine for a single named service.
func (o *Orchestrator) StartOne(ctx context.Context, name string) (Report, error) {
	svc, err := o.opts.Fleet.Lookup(name)
	if err != nil {
		return Report{}, err
	}
	report := Report{Results: []Result{o.startService(ctx, svc, false)}}
	return report, nil
}

// Dev starts one service with its auto-reload command. File watching and
// re-execs are entirely the spawned runtime's business; only the originally
// spawned pid is tracked.
func (o *Orchestrator) Dev(ctx context.Context, name string) (Report, error) {
	svc, err := o.opts.Fleet.Lookup(name)
	if err != nil {
		return Report{}, err
	}
	return Report{Results: []Result{o.startService(ctx, svc, true)}}, nil
}

// StopAll stops every service in registry order.
func (o *Orchestrator) StopAll(ctx context.Context) (Report, error) {
	report := Report{}
	for _, svc := range o.opts.Fleet.Services() {
		report.Results = append(report.Results, o.stopService(ctx, svc))
	}
	return report, nil
}

// StopOne stops a single named service.
func (o *Orchestrator) StopOne(ctx context.Context, name string) (Report, error) {
	svc, err := o.opts.Fleet.Lookup(name)
	if err != nil {
		return Report{}, err
	}
	return Report{Results: []Result{o.stopService(ctx, svc)}}, nil
}

// RestartAll is a fleet-wide stop followed by a fleet-wide start.
func (o *Orchestrator) RestartAll(ctx context.Context) (Report, error) {
	if _, err := o.StopAll(ctx); err != nil {
		return Report{}, err
	}
	return o.StartAll(ctx)
}

// RestartOne is stop-then-start for one service, reusing the same state
// machine.
func (o *Orchestrator) RestartOne(ctx context.Context, name string) (Report, error) {
	svc, err := o.opts.Fleet.Lookup(name)
	if err != nil {
		return Report{}, err
	}
	o.stopService(ctx, svc)
	return Report{Results: []Result{o.startService(ctx, svc, false)}}, nil
}

// startService drives one service through the full state machine and
// returns its terminal result.
func (o *Orchestrator) startService(ctx context.Context, svc fleet.Service, dev bool) Result {
	res := Result{Service: svc}

	// Stopping: unconditional clean slate, even with no tracked pid.
	o.stopService(ctx, svc)

	// PortCheck: reclaim already ran; if something still owns the port it
	// raced back in or ignores SIGKILL semantics (e.g. a container proxy).
	if o.opts.Guard.IsBound(svc.Port) {
		o.log.Error("port still bound, skipping launch", "service", svc.Name, "port", svc.Port)
		res.State = StateFailed
		res.Err = fmt.Errorf("%s: %w (port %d)", svc.Name, ErrPortBusy, svc.Port)
		metrics.IncLaunchFailure(svc.Name, "port_busy")
		o.record(history.Event{Service: svc.Name, Kind: history.KindLaunchFailed,
			Detail: fmt.Sprintf("port %d still bound", svc.Port)})
		return res
	}

	// Launching: detached spawn, pid recorded immediately.
	command := svc.Command
	if dev && svc.DevCommand != "" {
		command = svc.DevCommand
	}
	pid, err := o.opts.Control.Spawn(proc.SpawnSpec{
		Name:    svc.Name,
		Command: command,
		Env:     o.opts.Env,
		LogPath: o.LogPath(svc.Name),
	})
	if err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("%s: launch: %w", svc.Name, err)
		metrics.IncLaunchFailure(svc.Name, "spawn_error")
		o.record(history.Event{Service: svc.Name, Kind: history.KindLaunchFailed, Detail: err.Error()})
		return res
	}
	res.PID = pid
	if err := o.opts.Tracker.Record(svc.Name, pid); err != nil {
		// Local write failure is fatal for this service: without a marker
		// the supervisor would lose track of the process it just launched.
		_ = o.opts.Control.Kill(pid)
		res.State = StateFailed
		res.Err = fmt.Errorf("%s: %w", svc.Name, err)
		return res
	}
	o.log.Info("launched", "service", svc.Name, "pid", pid, "port", svc.Port)

	// Immediate liveness check catches processes that die on arrival
	// (import errors, bad config) before we wait out the settle delay.
	if !o.opts.Control.Alive(pid) {
		_ = o.opts.Tracker.Forget(svc.Name)
		res.State = StateFailed
		res.Err = fmt.Errorf("%s: process %d exited immediately", svc.Name, pid)
		metrics.IncLaunchFailure(svc.Name, "died_immediately")
		o.record(history.Event{Service: svc.Name, PID: pid, Kind: history.KindLaunchFailed,
			Detail: "process exited immediately"})
		return res
	}
	metrics.IncStart(svc.Name)

	// AwaitingHealth: fixed settle delay, then exactly one probe.
	o.sleepCtx(ctx, o.opts.SettleDelay)
	res.Health = o.opts.Prober.Probe(ctx, svc.Port)
	metrics.ObserveHealth(svc.Name, res.Health.String())
	if res.Health != health.Healthy {
		// Deliberate asymmetry: an unhealthy-but-running process is kept
		// alive. It may just be starting slowly; the operator decides.
		o.log.Warn("health probe failed, process left running",
			"service", svc.Name, "pid", pid, "port", svc.Port)
		res.State = StateDegraded
		o.record(history.Event{Service: svc.Name, PID: pid, Kind: history.KindDegraded,
			Detail: "health probe unreachable after launch"})
		return res
	}

	// AwaitingRegistration: only probed when healthy; advisory only.
	res.Registration = o.opts.Reconciler.ConfirmRegistration(ctx, svc.Name,
		o.opts.RegistrationAttempts, o.opts.RegistrationInterval)
	metrics.ObserveRegistration(svc.Name, res.Registration.String())
	switch res.Registration {
	case discovery.Registered:
		o.log.Info("service ready", "service", svc.Name, "pid", pid)
	case discovery.RegistryUnreachable:
		o.log.Warn("discovery registry unreachable", "service", svc.Name)
	case discovery.NotRegistered:
		o.log.Warn("service did not appear in registry", "service", svc.Name)
	}
	res.State = StateReady
	o.record(history.Event{Service: svc.Name, PID: pid, Kind: history.KindStarted})
	return res
}

// stopService releases everything the service may hold: the tracked process
// (graceful first, then kill), the port (reclaim regardless of tracker
// belief), and the marker file. Stopping an already-stopped service is a
// successful no-op.
func (o *Orchestrator) stopService(_ context.Context, svc fleet.Service) Result {
	res := Result{Service: svc, State: StateStopped}

	pid, tracked, err := o.opts.Tracker.Lookup(svc.Name)
	if err != nil {
		// A corrupt marker must not leave the port occupied; fall through
		// to reclaim and clear the marker.
		o.log.Warn("unreadable pid marker", "service", svc.Name, "error", err)
	}
	if tracked && o.opts.Control.Alive(pid) {
		res.PID = pid
		if err := o.opts.Control.Terminate(pid); err != nil {
			o.log.Warn("terminate failed, escalating", "service", svc.Name, "pid", pid, "error", err)
		}
		deadline := time.Now().Add(o.opts.StopWait)
		for o.opts.Control.Alive(pid) && time.Now().Before(deadline) {
			o.sleep(50 * time.Millisecond)
		}
		if o.opts.Control.Alive(pid) {
			_ = o.opts.Control.Kill(pid)
		}
		metrics.IncStop(svc.Name)
		o.record(history.Event{Service: svc.Name, PID: pid, Kind: history.KindStopped})
		o.log.Info("stopped", "service", svc.Name, "pid", pid)
	}

	// Port ownership wins over the stored pid: reclaim catches orphaned or
	// externally-started occupants the tracker never knew about.
	reclaimed, err := o.opts.Guard.Reclaim(svc.Port)
	if err != nil {
		o.log.Warn("port reclaim", "service", svc.Name, "port", svc.Port, "error", err)
		res.Err = err
	}
	if reclaimed {
		metrics.IncReclaim(svc.Name)
	}
	if err := o.opts.Tracker.Forget(svc.Name); err != nil {
		res.Err = err
	}
	return res
}

// Status builds a read-only fleet report: tracked pid liveness, port
// binding, one health probe and one registry check per service. Stale
// markers (tracked pid dead) are pruned as they are discovered.
func (o *Orchestrator) Status(ctx context.Context) Report {
	report := Report{}
	for _, svc := range o.opts.Fleet.Services() {
		res := Result{Service: svc}
		pid, tracked, _ := o.opts.Tracker.Lookup(svc.Name)
		switch {
		case tracked && o.opts.Control.Alive(pid):
			res.PID = pid
			res.Health = o.opts.Prober.Probe(ctx, svc.Port)
			if res.Health == health.Healthy {
				res.State = StateReady
			} else {
				res.State = StateDegraded
			}
			res.Registration = o.opts.Reconciler.ConfirmRegistration(ctx, svc.Name, 1, 0)
		case tracked:
			// Marker with a dead pid: the process died out-of-band.
			_ = o.opts.Tracker.Forget(svc.Name)
			res.State = StateStopped
		default:
			res.State = StateStopped
		}
		if res.State == StateStopped {
			// The kernel, not the marker, decides whether the port is
			// free: an orphan or a foreign process may still hold it.
			res.PortBound = o.opts.Guard.IsBound(svc.Port)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// SelfTest probes every service's health endpoint and the registry once,
// without touching any process. It reports what it saw; the caller renders.
func (o *Orchestrator) SelfTest(ctx context.Context) Report {
	report := Report{}
	for _, svc := range o.opts.Fleet.Services() {
		res := Result{Service: svc}
		res.Health = o.opts.Prober.Probe(ctx, svc.Port)
		res.Registration = o.opts.Reconciler.ConfirmRegistration(ctx, svc.Name, 1, 0)
		if res.Health == health.Healthy {
			res.State = StateReady
		} else {
			res.State = StateDegraded
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// cleanupAfterInterrupt is the guaranteed full-fleet stop on operator
// abort. It runs on a fresh context: the triggering cancellation must not
// cut the cleanup short.
func (o *Orchestrator) cleanupAfterInterrupt() {
	_, _ = o.StopAll(context.Background())
}

func (o *Orchestrator) record(e history.Event) {
	if o.opts.History == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	if err := o.opts.History.Append(context.Background(), e); err != nil {
		o.log.Warn("history append failed", "service", e.Service, "error", err)
	}
}

func (o *Orchestrator) sleep(d time.Duration) {
	if o.opts.Sleep != nil {
		o.opts.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (o *Orchestrator) sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if o.opts.Sleep != nil {
		// Injected sleeps are test-controlled and assumed short.
		o.opts.Sleep(d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
