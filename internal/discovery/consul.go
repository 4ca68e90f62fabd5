package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Lister reads the current set of registered service identifiers from the
// discovery registry. Identifiers may carry instance suffixes
// (name-host-port), so callers match by substring.
type Lister interface {
	Services(ctx context.Context) ([]string, error)
}

// DefaultConsulAddr is the agent address services register against locally.
const DefaultConsulAddr = "http://127.0.0.1:8500"

// ConsulClient lists registered services from a Consul agent.
type ConsulClient struct {
	baseURL string
	client  *http.Client
}

func NewConsulClient(baseURL string, timeout time.Duration) *ConsulClient {
	if baseURL == "" {
		baseURL = DefaultConsulAddr
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ConsulClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// consulService is the subset of the agent's service description we need.
type consulService struct {
	Service string `json:"Service"`
}

// Services queries GET /v1/agent/services. The response is a map keyed by
// service id; both ids and service names are returned so substring matching
// works regardless of which one carries the instance suffix.
func (c *ConsulClient) Services(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/v1/agent/services"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: query consul agent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: consul agent returned status %d", resp.StatusCode)
	}
	var services map[string]consulService
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return nil, fmt.Errorf("discovery: decode agent services: %w", err)
	}
	out := make([]string, 0, len(services)*2)
	for id, svc := range services {
		out = append(out, id)
		if svc.Service != "" && svc.Service != id {
			out = append(out, svc.Service)
		}
	}
	return out, nil
}
