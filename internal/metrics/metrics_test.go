package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second registration is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	IncStart("auth_service")
	IncStart("auth_service")
	IncStop("auth_service")
	IncLaunchFailure("order_service", "port_busy")
	ObserveHealth("auth_service", "healthy")
	ObserveRegistration("auth_service", "registered")
	IncReclaim("auth_service")

	if v := testutil.ToFloat64(serviceStarts.WithLabelValues("auth_service")); v != 2 {
		t.Fatalf("starts_total = %v, want 2", v)
	}
	if v := testutil.ToFloat64(serviceStops.WithLabelValues("auth_service")); v != 1 {
		t.Fatalf("stops_total = %v, want 1", v)
	}
	if v := testutil.ToFloat64(launchFailures.WithLabelValues("order_service", "port_busy")); v != 1 {
		t.Fatalf("launch_failures_total = %v, want 1", v)
	}
	if v := testutil.ToFloat64(healthProbes.WithLabelValues("auth_service", "healthy")); v != 1 {
		t.Fatalf("health probes = %v, want 1", v)
	}
	if v := testutil.ToFloat64(registrationResults.WithLabelValues("auth_service", "registered")); v != 1 {
		t.Fatalf("registration results = %v, want 1", v)
	}
	if v := testutil.ToFloat64(portReclaims.WithLabelValues("auth_service")); v != 1 {
		t.Fatalf("reclaims = %v, want 1", v)
	}
}

func TestMetricNamesAreNamespaced(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncStart("x")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), "fleetctl_") {
			t.Fatalf("metric %s lacks fleetctl namespace", fam.GetName())
		}
	}
}
