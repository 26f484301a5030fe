// Package backend wraps the collective-traffic backend service. All call
// sites share one base address and one HTTP client; every endpoint gets its
// own method so callers never build URLs themselves.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the HTTP implementation of the API interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a backend client for the given base URL. The timeout
// applies per call; expiry is reported as an ordinary error, never a panic.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ActiveUsers fetches the number of connected users and cameras.
func (c *Client) ActiveUsers(ctx context.Context) (*ActiveUsersResponse, error) {
	var out ActiveUsersResponse
	if err := c.get(ctx, "/active_users", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AvailableCameras fetches the count of cameras currently streaming.
func (c *Client) AvailableCameras(ctx context.Context) (*AvailableCamerasResponse, error) {
	var out AvailableCamerasResponse
	if err := c.get(ctx, "/available_cameras", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrafficSignals fetches the backend's current signal map.
func (c *Client) TrafficSignals(ctx context.Context) (*TrafficSignalsResponse, error) {
	var out TrafficSignalsResponse
	if err := c.get(ctx, "/traffic_signals", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RoadNetwork fetches the simulated road network for overlays.
func (c *Client) RoadNetwork(ctx context.Context) (*RoadNetworkResponse, error) {
	var out RoadNetworkResponse
	if err := c.get(ctx, "/road_network", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CollectiveTraffic fetches aggregated per-lane traffic from all users.
func (c *Client) CollectiveTraffic(ctx context.Context) (*CollectiveTrafficResponse, error) {
	var out CollectiveTrafficResponse
	if err := c.get(ctx, "/collective_traffic", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestTraffic fetches the most recent stored observation.
func (c *Client) LatestTraffic(ctx context.Context) (*LatestTrafficResponse, error) {
	var out LatestTrafficResponse
	if err := c.get(ctx, "/latest_traffic", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTraffic reports one observation's lane counts to the backend.
func (c *Client) SubmitTraffic(ctx context.Context, req SubmitTrafficRequest) (*SubmitTrafficResponse, error) {
	var out SubmitTrafficResponse
	if err := c.post(ctx, "/submit_traffic", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OptimizeRouteMultiUser requests the server-side optimized route.
func (c *Client) OptimizeRouteMultiUser(ctx context.Context, req RouteCoordsRequest) (*OptimizeRouteResponse, error) {
	var out OptimizeRouteResponse
	if err := c.post(ctx, "/optimize_route_multi_user", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("optimize_route_multi_user rejected: %s", out.Error)
	}
	return &out, nil
}

// StartEndRoute requests the server-side enhanced route.
func (c *Client) StartEndRoute(ctx context.Context, req RouteCoordsRequest) (*StartEndRouteResponse, error) {
	var out StartEndRouteResponse
	if err := c.post(ctx, "/start_end_route", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("start_end_route rejected: %s", out.Error)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
