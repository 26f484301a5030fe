package backend

import (
	"context"
)

// API is the collective-traffic backend surface, one method per endpoint.
// Injected as an interface so tests and the presentation layer can substitute
// the transport.
type API interface {
	ActiveUsers(ctx context.Context) (*ActiveUsersResponse, error)
	AvailableCameras(ctx context.Context) (*AvailableCamerasResponse, error)
	TrafficSignals(ctx context.Context) (*TrafficSignalsResponse, error)
	RoadNetwork(ctx context.Context) (*RoadNetworkResponse, error)
	CollectiveTraffic(ctx context.Context) (*CollectiveTrafficResponse, error)
	LatestTraffic(ctx context.Context) (*LatestTrafficResponse, error)
	SubmitTraffic(ctx context.Context, req SubmitTrafficRequest) (*SubmitTrafficResponse, error)
	OptimizeRouteMultiUser(ctx context.Context, req RouteCoordsRequest) (*OptimizeRouteResponse, error)
	StartEndRoute(ctx context.Context, req RouteCoordsRequest) (*StartEndRouteResponse, error)
}

// LatLng is a coordinate pair as the backend serializes it.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ActiveUsersResponse mirrors GET /active_users.
type ActiveUsersResponse struct {
	Count         int          `json:"count"`
	ActiveCameras int          `json:"active_cameras"`
	Users         []ActiveUser `json:"users"`
	Timestamp     string       `json:"timestamp"`
	Success       bool         `json:"success"`
}

// ActiveUser is one connected user in the active_users listing.
type ActiveUser struct {
	ID           string    `json:"id"`
	LastActive   string    `json:"last_active"`
	CameraActive bool      `json:"camera_active"`
	Location     []float64 `json:"location"`
}

// AvailableCamerasResponse mirrors GET /available_cameras.
type AvailableCamerasResponse struct {
	Count   int  `json:"count"`
	Success bool `json:"success"`
}

// SignalStatus is one traffic signal's state in the backend's signal map.
type SignalStatus struct {
	Status     string  `json:"status"`
	Duration   int     `json:"duration"`
	Lane       string  `json:"lane"`
	NextChange float64 `json:"next_change"`
}

// TrafficSignalsResponse mirrors GET /traffic_signals.
type TrafficSignalsResponse struct {
	Signals       map[string]SignalStatus `json:"signals"`
	ActiveUsers   int                     `json:"active_users"`
	ActiveCameras int                     `json:"active_cameras"`
	Timestamp     string                  `json:"timestamp"`
	Success       bool                    `json:"success"`
}

// LaneAggregate is per-lane collective data.
type LaneAggregate struct {
	Total   int     `json:"total"`
	Users   int     `json:"users"`
	Average float64 `json:"average"`
}

// CollectiveTrafficResponse mirrors GET /collective_traffic.
type CollectiveTrafficResponse struct {
	AggregatedData  map[string]LaneAggregate `json:"aggregated_data"`
	CongestionLevel string                   `json:"congestion_level"`
	TotalUsers      int                      `json:"total_users"`
	ActiveCameras   int                      `json:"active_cameras"`
	ConfidenceScore float64                  `json:"confidence_score"`
	Timestamp       string                   `json:"timestamp"`
	Success         bool                     `json:"success"`
}

// LatestTrafficResponse mirrors GET /latest_traffic.
type LatestTrafficResponse struct {
	Lane1             int    `json:"lane_1"`
	Lane2             int    `json:"lane_2"`
	Lane3             int    `json:"lane_3"`
	AmbulanceDetected bool   `json:"ambulance_detected"`
	Timestamp         string `json:"timestamp"`
	Message           string `json:"message,omitempty"`
	Success           bool   `json:"success"`
}

// RoadNode is one node of the backend's simulated road network.
type RoadNode struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	TrafficCost float64 `json:"traffic_cost"`
}

// RoadSegment groups road-network nodes by lane.
type RoadSegment struct {
	LaneType     string     `json:"lane_type"`
	Nodes        []RoadNode `json:"nodes"`
	TrafficLevel float64    `json:"traffic_level"`
}

// RoadNetworkResponse mirrors GET /road_network.
type RoadNetworkResponse struct {
	Roads       []RoadSegment      `json:"roads"`
	TrafficData map[string]float64 `json:"traffic_data"`
	TotalNodes  int                `json:"total_nodes"`
	Success     bool               `json:"success"`
}

// SubmitTrafficRequest mirrors POST /submit_traffic.
type SubmitTrafficRequest struct {
	Lane1             int    `json:"lane_1"`
	Lane2             int    `json:"lane_2"`
	Lane3             int    `json:"lane_3"`
	AmbulanceDetected bool   `json:"ambulance_detected"`
	UserID            string `json:"user_id,omitempty"`
	Timestamp         string `json:"timestamp,omitempty"`
}

// SubmitTrafficResponse is the submission acknowledgement.
type SubmitTrafficResponse struct {
	Message     string `json:"message"`
	UserUpdated bool   `json:"user_updated"`
	Success     bool   `json:"success"`
}

// RouteCoordsRequest carries a start/end pair to the routing endpoints.
type RouteCoordsRequest struct {
	StartLat float64 `json:"start_lat"`
	StartLng float64 `json:"start_lng"`
	EndLat   float64 `json:"end_lat"`
	EndLng   float64 `json:"end_lng"`
	UserID   string  `json:"user_id,omitempty"`
}

// OptimalRoute is the backend's multi-user optimized route payload.
type OptimalRoute struct {
	Path             []LatLng `json:"path"`
	DistanceKm       float64  `json:"distance_km"`
	EstimatedTimeMin float64  `json:"estimated_time_min"`
	CongestionLevel  string   `json:"congestion_level"`
	AvgSpeedKmh      float64  `json:"avg_speed_kmh"`
	Confidence       float64  `json:"confidence"`
}

// AlternativeRoute is one heuristic alternative from the optimizer.
type AlternativeRoute struct {
	Name             string   `json:"name"`
	Path             []LatLng `json:"path"`
	DistanceKm       float64  `json:"distance_km"`
	EstimatedTimeMin float64  `json:"estimated_time_min"`
	Reason           string   `json:"reason"`
}

// OptimizeRouteResponse mirrors POST /optimize_route_multi_user.
type OptimizeRouteResponse struct {
	OptimalRoute      *OptimalRoute      `json:"optimal_route"`
	AlternativeRoutes []AlternativeRoute `json:"alternative_routes"`
	TrafficSource     string             `json:"traffic_source"`
	ConfidenceScore   float64            `json:"confidence_score"`
	Error             string             `json:"error,omitempty"`
	Success           bool               `json:"success"`
}

// StartEndRouteResponse mirrors POST /start_end_route.
type StartEndRouteResponse struct {
	RecommendedLane  string         `json:"recommended_lane"`
	Traffic          map[string]int `json:"traffic"`
	Path             []LatLng       `json:"path"`
	RouteType        string         `json:"route_type"`
	DistanceKm       float64        `json:"distance_km"`
	EstimatedTimeMin float64        `json:"estimated_time_min"`
	TotalVehicles    int            `json:"total_vehicles"`
	AvgSpeedKmh      float64        `json:"avg_speed_kmh"`
	Warning          string         `json:"warning,omitempty"`
	Error            string         `json:"error,omitempty"`
	Success          bool           `json:"success"`
}
