// Package hetzner talks to the Hetzner Cloud API on behalf of a group's
// provider token.
package hetzner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

const (
	DefaultBaseURL = "https://api.hetzner.cloud/v1"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20

	unknownStatus = "unknown"
)

// Client implements ports.CloudProvider over the REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ ports.CloudProvider = (*Client)(nil)

// NewClient creates a client rooted at baseURL. An empty baseURL uses the
// public API and a nil client gets one with a default timeout.
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type serverResponse struct {
	Server struct {
		Status string `json:"status"`
	} `json:"server"`
}

// Status returns the server's provider-reported status, or "unknown" when
// the response carries none.
func (c *Client) Status(ctx context.Context, token, serverID string) (string, error) {
	body, err := c.do(ctx, "status", http.MethodGet, "/servers/"+serverID, token)
	if err != nil {
		return "", err
	}
	var resp serverResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("decode server status: %w", err)
	}
	if resp.Server.Status == "" {
		return unknownStatus, nil
	}
	return resp.Server.Status, nil
}

// Power triggers a power action and returns the raw response body.
func (c *Client) Power(ctx context.Context, token, serverID string, op domain.PowerOp) (string, error) {
	return c.do(ctx, string(op), http.MethodPost, "/servers/"+serverID+"/actions/"+string(op), token)
}

// do issues one request. Any non-2xx status becomes *domain.ProviderError
// with the body as received.
func (c *Client) do(ctx context.Context, op, method, path, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(op, "error").Inc()
		return "", fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.ProviderRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.ProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return string(raw), nil
}
