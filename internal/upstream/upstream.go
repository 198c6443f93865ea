// Package upstream fetches the AREDN mesh service catalog from one of a
// configured list of seed nodes, failing over to the next node on any
// transport, HTTP-status, or decode error.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/applog"
	"github.com/aredn/aredn-ldap-bridge/internal/model"
)

var logger = applog.For("aredn_ldap_bridge.upstream")

// Client fetches and filters the service catalog from the configured nodes.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client using a dedicated *http.Client with the given
// per-request timeout as its overall deadline.
func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type servicesPayload struct {
	Services []rawService `json:"services"`
}

type rawService struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Link     string `json:"link"`
	Protocol string `json:"protocol"`
}

// FetchServices iterates nodes in order, performing
// GET http://{node}/a/sysinfo?services=1 against each until one succeeds.
// The returned slice is filtered to records matching protocolFilter (by
// exact protocol match, case-insensitive, or by a "[protocolFilter]" tag
// substring in the name). An empty services array is a successful result.
// If every node fails, the last error encountered is returned.
func (c *Client) FetchServices(ctx context.Context, nodes []string, protocolFilter string) ([]model.Service, error) {
	var lastErr error
	filterLower := strings.ToLower(protocolFilter)
	tag := "[" + filterLower + "]"

	for _, node := range nodes {
		url := fmt.Sprintf("http://%s/a/sysinfo?services=1", node)
		logger.Info().Str("node", node).Str("url", url).Msg("fetching upstream services")

		services, err := c.fetchOne(ctx, url)
		if err != nil {
			lastErr = err
			logger.Warn().Str("node", node).Err(err).Msg("upstream node failed")
			continue
		}

		filtered := make([]model.Service, 0, len(services))
		for _, svc := range services {
			proto := strings.ToLower(svc.Protocol)
			name := strings.ToLower(svc.Name)
			if proto == filterLower || strings.Contains(name, tag) {
				filtered = append(filtered, model.Service{
					Name:     svc.Name,
					IP:       svc.IP,
					Link:     svc.Link,
					Protocol: svc.Protocol,
				})
			}
		}

		logger.Info().Str("node", node).Int("total", len(services)).Int("matched", len(filtered)).
			Str("protocol_filter", protocolFilter).Msg("upstream fetch succeeded")

		return filtered, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return nil, fmt.Errorf("no upstream nodes configured")
}

func (c *Client) fetchOne(ctx context.Context, url string) ([]rawService, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var payload servicesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}

	return payload.Services, nil
}
