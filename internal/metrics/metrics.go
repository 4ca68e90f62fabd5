package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors for fleet lifecycle outcomes. They are
// registered via Register and are no-ops until then.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service launches.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stops issued by the supervisor.",
		}, []string{"name"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "service",
			Name:      "launch_failures_total",
			Help:      "Launches that failed (port contention or immediate death).",
		}, []string{"name", "reason"},
	)
	portReclaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "port",
			Name:      "reclaims_total",
			Help:      "Forceful port reclaims performed before launch.",
		}, []string{"name"},
	)
	healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Health probe outcomes per service.",
		}, []string{"name", "status"},
	)
	registrationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetctl",
			Subsystem: "registry",
			Name:      "confirmations_total",
			Help:      "Registry confirmation outcomes per service.",
		}, []string{"name", "result"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// calls after the first success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		serviceStarts, serviceStops, launchFailures,
		portReclaims, healthProbes, registrationResults,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name, reason string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncReclaim(name string) {
	if regOK.Load() {
		portReclaims.WithLabelValues(name).Inc()
	}
}

func ObserveHealth(name, status string) {
	if regOK.Load() {
		healthProbes.WithLabelValues(name, status).Inc()
	}
}

func ObserveRegistration(name, result string) {
	if regOK.Load() {
		registrationResults.WithLabelValues(name, result).Inc()
	}
}
