// Package nominatim provides free-text place search against a
// Nominatim-compatible geocoding service.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// userAgent identifies us to the public service, which rejects anonymous
// clients.
const userAgent = "nammatraffic-server/1.0"

// Place is one geocoding result.
type Place struct {
	DisplayName string
	Latitude    float64
	Longitude   float64
}

// Client queries the Nominatim search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a place-search client. baseURL is the service root, e.g.
// "https://nominatim.openstreetmap.org".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search geocodes free-text input into candidate places, best match first.
// An empty result set is not an error; callers decide how to fall back.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nominatim error %d: %s", resp.StatusCode, string(body))
	}

	// Nominatim serializes coordinates as strings
	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue // Skip entries with unparseable coordinates
		}
		places = append(places, Place{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	return places, nil
}
