package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Status is the derived health of a service. It is never persisted and is
// recomputed on every probe.
type Status int

const (
	Unknown Status = iota
	Healthy
	Unreachable
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a single probe. Health endpoints answer in
// milliseconds when the service is up; anything slower is indistinguishable
// from down for the operator.
const DefaultTimeout = 2 * time.Second

// Prober issues single bounded-timeout requests against a service's health
// path. Connection refused, timeout and non-2xx all fold into Unreachable:
// the operator's remedy is the same either way (read the logs).
type Prober struct {
	client *http.Client
	host   string
	path   string
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: &http.Client{Timeout: timeout},
		host:   "127.0.0.1",
		path:   "/health",
	}
}

// Probe checks the health endpoint on the given port once.
func (p *Prober) Probe(ctx context.Context, port int) Status {
	url := fmt.Sprintf("http://%s:%d%s", p.host, port, p.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unreachable
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Unreachable
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Healthy
	}
	return Unreachable
}
