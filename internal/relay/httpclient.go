package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"parley/internal/domain"
)

// QueryClient talks to the relay's read-only HTTP surface. All requests are
// JSON over HTTP and accept a context for cancellation and deadlines;
// non-2xx statuses come back as errors carrying the path and status text.
type QueryClient struct {
	Base string
	HTTP *http.Client
}

// NewQueryClient builds a client for the relay at base, e.g.
// http://127.0.0.1:8080.
func NewQueryClient(base string, httpClient *http.Client) *QueryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &QueryClient{Base: base, HTTP: httpClient}
}

// Roster fetches the current participant snapshot.
func (c *QueryClient) Roster(ctx context.Context) ([]domain.Participant, error) {
	var out domain.RosterPayload
	if err := c.getJSON(ctx, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

// AuditEntries fetches the exported audit log. token may be empty when the
// relay has no export token configured.
func (c *QueryClient) AuditEntries(ctx context.Context, token string) ([]json.RawMessage, error) {
	headers := map[string]string{}
	if token != "" {
		headers["X-Log-Token"] = token
	}
	var out struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := c.getJSON(ctx, "/logs", headers, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Health checks the relay liveness endpoint.
func (c *QueryClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/healthz", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("relay unhealthy: %q", out.Status)
	}
	return nil
}

func (c *QueryClient) getJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
