package discovery

import (
	"context"
	"strings"
	"time"
)

// Registration is the outcome of confirming a service's self-registration.
type Registration int

const (
	// RegistrationUnknown means no confirmation was attempted (e.g. the
	// service never became healthy, so registration was not probed).
	RegistrationUnknown Registration = iota
	Registered
	RegistryUnreachable
	NotRegistered
)

func (r Registration) String() string {
	switch r {
	case Registered:
		return "registered"
	case RegistryUnreachable:
		return "registry unreachable"
	case NotRegistered:
		return "not registered"
	default:
		return "unknown"
	}
}

// Reconciler confirms that a started service has self-registered with the
// discovery registry. Registration is asynchronous relative to process
// launch (the service registers after its own startup completes), hence the
// bounded poll instead of a single check.
type Reconciler struct {
	Lister Lister
	// Sleep is injectable for tests; nil uses time.Sleep.
	Sleep func(time.Duration)
}

func NewReconciler(l Lister) *Reconciler {
	return &Reconciler{Lister: l}
}

// ConfirmRegistration polls the registry listing up to maxAttempts times,
// sleeping interval between attempts.
//
//   - First listing containing name (substring match, since registry keys
//     carry instance suffixes) short-circuits to Registered.
//   - A transport failure aborts immediately with RegistryUnreachable:
//     retrying past a connectivity failure wastes the attempt budget.
//   - Exhausting the budget with the registry reachable but the service
//     absent yields NotRegistered, which is advisory, never fatal.
func (r *Reconciler) ConfirmRegistration(ctx context.Context, name string, maxAttempts int, interval time.Duration) Registration {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return RegistryUnreachable
		}
		listed, err := r.Lister.Services(ctx)
		if err != nil {
			return RegistryUnreachable
		}
		for _, entry := range listed {
			if strings.Contains(entry, name) {
				return Registered
			}
		}
		if attempt < maxAttempts && !r.wait(ctx, interval) {
			return RegistryUnreachable
		}
	}
	return NotRegistered
}

// wait sleeps the inter-attempt interval, returning false as soon as ctx is
// cancelled so an operator interrupt never stalls on remaining attempts.
func (r *Reconciler) wait(ctx context.Context, d time.Duration) bool {
	if r.Sleep != nil {
		r.Sleep(d)
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
