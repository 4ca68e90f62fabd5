package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownService is returned by Lookup for names absent from the fleet.
// Callers are expected to surface the valid service list to the operator.
var ErrUnknownService = errors.New("unknown service")

// Service describes one managed process: a unique name, the port it must
// bind, and the commands used to launch it in normal and dev (auto-reload)
// mode. Order of services in a Fleet is significant: start, stop and status
// always walk the fleet in declaration order.
type Service struct {
	Name       string `json:"name" toml:"name" mapstructure:"name"`
	Port       int    `json:"port" toml:"port" mapstructure:"port"`
	Command    string `json:"command" toml:"command" mapstructure:"command"`
	DevCommand string `json:"dev_command" toml:"dev_command" mapstructure:"dev_command"`
}

// Fleet is the immutable, ordered table of services the supervisor manages.
type Fleet struct {
	services []Service
	byName   map[string]int
}

// New validates and freezes the given service table.
func New(services []Service) (*Fleet, error) {
	if len(services) == 0 {
		return nil, errors.New("fleet: empty service table")
	}
	byName := make(map[string]int, len(services))
	byPort := make(map[int]string, len(services))
	for i, s := range services {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("fleet: service at index %d has empty name", i)
		}
		if s.Port <= 0 || s.Port > 65535 {
			return nil, fmt.Errorf("fleet: service %s has invalid port %d", s.Name, s.Port)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("fleet: duplicate service name %s", s.Name)
		}
		if owner, dup := byPort[s.Port]; dup {
			return nil, fmt.Errorf("fleet: port %d claimed by both %s and %s", s.Port, owner, s.Name)
		}
		byName[s.Name] = i
		byPort[s.Port] = s.Name
	}
	return &Fleet{services: append([]Service(nil), services...), byName: byName}, nil
}

// Services returns the fleet in declaration order. The returned slice is a copy.
func (f *Fleet) Services() []Service {
	return append([]Service(nil), f.services...)
}

// Len returns the number of services in the fleet.
func (f *Fleet) Len() int { return len(f.services) }

// Names returns the ordered service names.
func (f *Fleet) Names() []string {
	out := make([]string, len(f.services))
	for i, s := range f.services {
		out[i] = s.Name
	}
	return out
}

// Lookup resolves a service by name. The error wraps ErrUnknownService and
// includes the full valid list so commands can print it verbatim.
func (f *Fleet) Lookup(name string) (Service, error) {
	if i, ok := f.byName[name]; ok {
		return f.services[i], nil
	}
	return Service{}, fmt.Errorf("%w: %q (valid services: %s)",
		ErrUnknownService, name, strings.Join(f.Names(), ", "))
}

// PortInRecommendedRange reports whether a port falls inside the platform's
// conventional 8200-8299 service range. Outside is allowed but worth a warning.
func PortInRecommendedRange(port int) bool {
	return port >= 8200 && port <= 8299
}

// Default returns the built-in table of the seventeen platform services.
func Default() *Fleet {
	f, err := New(defaultServices())
	if err != nil {
		// The built-in table is validated by tests; reaching this is a bug.
		panic(err)
	}
	return f
}

func defaultServices() []Service {
	mk := func(name string, port int) Service {
		return Service{
			Name: name,
			Port: port,
			Command: fmt.Sprintf("python -m uvicorn microservices.%s.main:app --host 0.0.0.0 --port %d",
				name, port),
			DevCommand: fmt.Sprintf("python -m uvicorn microservices.%s.main:app --host 0.0.0.0 --port %d --reload",
				name, port),
		}
	}
	return []Service{
		mk("account_service", 8201),
		mk("auth_service", 8202),
		mk("authorization_service", 8203),
		mk("audit_service", 8204),
		mk("session_service", 8205),
		mk("event_service", 8206),
		mk("payment_service", 8207),
		mk("wallet_service", 8208),
		mk("storage_service", 8209),
		mk("order_service", 8210),
		mk("invitation_service", 8211),
		mk("organization_service", 8212),
		mk("notification_service", 8213),
		mk("task_service", 8214),
		mk("telemetry_service", 8215),
		mk("ota_service", 8216),
		mk("device_service", 8220),
	}
}
