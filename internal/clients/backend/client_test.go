package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectiveTraffic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collective_traffic", r.URL.Path)
		json.NewEncoder(w).Encode(CollectiveTrafficResponse{
			AggregatedData: map[string]LaneAggregate{
				"lane_1": {Total: 12, Users: 3, Average: 4},
				"lane_2": {Total: 6, Users: 2, Average: 3},
				"lane_3": {Total: 20, Users: 4, Average: 5},
			},
			CongestionLevel: "Medium",
			ActiveCameras:   4,
			ConfidenceScore: 0.4,
			Success:         true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	resp, err := client.CollectiveTraffic(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, resp.AggregatedData["lane_1"].Total)
	assert.Equal(t, "Medium", resp.CongestionLevel)
	assert.True(t, resp.Success)
}

func TestSubmitTraffic(t *testing.T) {
	var received SubmitTrafficRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submit_traffic", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(SubmitTrafficResponse{Message: "ok", UserUpdated: true, Success: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	resp, err := client.SubmitTraffic(context.Background(), SubmitTrafficRequest{
		Lane1: 4, Lane2: 2, Lane3: 7, AmbulanceDetected: true, UserID: "user-9",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 4, received.Lane1)
	assert.True(t, received.AmbulanceDetected)
	assert.Equal(t, "user-9", received.UserID)
}

func TestOptimizeRouteMultiUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OptimizeRouteResponse{
			OptimalRoute: &OptimalRoute{
				Path:             []LatLng{{Lat: 12.9774, Lng: 77.5708}, {Lat: 12.9758, Lng: 77.6096}},
				DistanceKm:       4.2,
				EstimatedTimeMin: 9.5,
				Confidence:       0.8,
				AvgSpeedKmh:      30,
			},
			Success: true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	resp, err := client.OptimizeRouteMultiUser(context.Background(), RouteCoordsRequest{
		StartLat: 12.9774, StartLng: 77.5708, EndLat: 12.9758, EndLng: 77.6096, UserID: "user-9",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.OptimalRoute)
	assert.Len(t, resp.OptimalRoute.Path, 2)
	assert.InDelta(t, 4.2, resp.OptimalRoute.DistanceKm, 0.001)
}

func TestOptimizeRouteMultiUser_BackendRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OptimizeRouteResponse{Error: "Missing start or end coordinates", Success: false})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.OptimizeRouteMultiUser(context.Background(), RouteCoordsRequest{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Missing start or end coordinates")
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.LatestTraffic(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backend error 500")
}

func TestTimeoutIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 50*time.Millisecond)
	_, err := client.ActiveUsers(context.Background())
	assert.Error(t, err, "Timeout expiry is call failure, not a panic")
}
