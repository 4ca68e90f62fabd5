package orchestrator

import (
	"fmt"
	"strings"

	"github.com/linkfleet/fleetctl/internal/discovery"
	"github.com/linkfleet/fleetctl/internal/fleet"
	"github.com/linkfleet/fleetctl/internal/health"
)

// State is a service's terminal state for one invocation.
type State int

const (
	StateStopped State = iota
	StateReady
	StateDegraded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "stopped"
	}
}

// Result is one service's outcome: terminal state plus the derived health
// and registration views and the pid involved, if any. The *Name fields are
// the serialized forms of their enum counterparts, filled by Finalize.
type Result struct {
	Service          fleet.Service          `json:"service"`
	State            State                  `json:"-"`
	StateName        string                 `json:"state"`
	PID              int                    `json:"pid,omitempty"`
	Health           health.Status          `json:"-"`
	HealthName       string                 `json:"health,omitempty"`
	Registration     discovery.Registration `json:"-"`
	RegistrationName string                 `json:"registration,omitempty"`
	// PortBound flags a stopped service whose port is nonetheless held by
	// some process the tracker knows nothing about.
	PortBound bool  `json:"port_bound,omitempty"`
	Err       error `json:"-"`
}

// Report aggregates per-service results in registry order. It is a
// read-time view, never persisted.
type Report struct {
	Results []Result `json:"results"`
}

// Ready counts services that reached StateReady.
func (r Report) Ready() int { return r.count(StateReady) }

// Degraded counts services running but unhealthy.
func (r Report) Degraded() int { return r.count(StateDegraded) }

// Failed counts services whose launch failed outright.
func (r Report) Failed() int { return r.count(StateFailed) }

func (r Report) count(s State) int {
	n := 0
	for _, res := range r.Results {
		if res.State == s {
			n++
		}
	}
	return n
}

// Render produces the operator-facing table, one line per service in
// registry order, plus a summary line.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-6s %-9s %-20s %-20s\n", "SERVICE", "PORT", "PID", "STATE", "REGISTRY")
	for _, res := range r.Results {
		pid := "-"
		if res.PID > 0 {
			pid = fmt.Sprintf("%d", res.PID)
		}
		reg := "-"
		if res.Registration != discovery.RegistrationUnknown {
			reg = res.Registration.String()
		}
		state := res.State.String()
		if res.State == StateDegraded && res.Health == health.Unreachable {
			state = "degraded (no health)"
		}
		if res.State == StateStopped && res.PortBound {
			state = "stopped (port busy)"
		}
		fmt.Fprintf(&b, "%-24s %-6d %-9s %-20s %-20s\n", res.Service.Name, res.Service.Port, pid, state, reg)
		if res.Err != nil {
			fmt.Fprintf(&b, "    %v\n", res.Err)
		}
	}
	fmt.Fprintf(&b, "\n%d ready, %d degraded, %d failed (of %d services)\n",
		r.Ready(), r.Degraded(), r.Failed(), len(r.Results))
	return b.String()
}

// Finalize fills the serialization-only fields before JSON encoding. Health
// and registration stay empty when never probed (e.g. a stopped service).
func (r *Report) Finalize() {
	for i := range r.Results {
		res := &r.Results[i]
		res.StateName = res.State.String()
		if res.Health != health.Unknown {
			res.HealthName = res.Health.String()
		}
		if res.Registration != discovery.RegistrationUnknown {
			res.RegistrationName = res.Registration.String()
		}
	}
}
