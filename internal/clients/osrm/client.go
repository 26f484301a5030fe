// Package osrm provides access to an OSRM-compatible turn-by-turn routing
// service.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nammatraffic/server/internal/lib/geo"
)

// Client queries the OSRM HTTP API for driving routes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// RouteData is one processed route alternative.
type RouteData struct {
	Geometry        []geo.Point
	DistanceMeters  float64
	DurationSeconds float64
}

// NewClient creates an OSRM client. baseURL is the service root, e.g.
// "https://router.project-osrm.org".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Route requests driving routes between start and end, alternatives included.
// OSRM addresses coordinates longitude-first.
func (c *Client) Route(ctx context.Context, start, end geo.Point) ([]RouteData, error) {
	if !geo.IsValid(start) || !geo.IsValid(end) {
		return nil, fmt.Errorf("invalid route coordinates")
	}

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?alternatives=true&overview=full",
		c.baseURL, start.Longitude, start.Latitude, end.Longitude, end.Latitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("osrm error %d: %s", resp.StatusCode, string(body))
	}

	var response routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Code != "Ok" {
		return nil, fmt.Errorf("osrm returned code %q: %s", response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	routes := make([]RouteData, 0, len(response.Routes))
	for _, r := range response.Routes {
		geometry, err := geo.DecodePolyline(r.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to decode route geometry: %w", err)
		}
		routes = append(routes, RouteData{
			Geometry:        geometry,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		})
	}
	return routes, nil
}

// routeResponse is the OSRM /route/v1 payload shape.
type routeResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Geometry string  `json:"geometry"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}
