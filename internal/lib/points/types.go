package points

import (
	"time"
)

// Level classifies congestion at a single observation point.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// LevelForVehicleCount classifies a vehicle total into a congestion level.
func LevelForVehicleCount(total int) Level {
	if total > 20 {
		return LevelHigh
	}
	if total > 10 {
		return LevelMedium
	}
	return LevelLow
}

// AverageSpeedKmh estimates average traffic speed from a vehicle total.
func AverageSpeedKmh(totalVehicles int) float64 {
	if totalVehicles > 20 {
		return 20 // heavy
	}
	if totalVehicles > 10 {
		return 30 // moderate
	}
	return 40 // light
}

// TrafficPoint is a single crowd-sourced or synthesized observation in the
// canonical collection. Points are session-lived: created on first sighting,
// updated in place, never deleted.
type TrafficPoint struct {
	ID                string    `json:"id"`
	Latitude          float64   `json:"lat"`
	Longitude         float64   `json:"lng"`
	Level             Level     `json:"level"`
	VehicleCount      int       `json:"vehicle_count"`
	AmbulanceDetected bool      `json:"ambulance_detected"`
	LocationName      string    `json:"location_name,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"user_id,omitempty"`
	Synthetic         bool      `json:"synthetic,omitempty"`
}

// Observation is a raw report arriving from polling or the push channel.
// Coordinates are required; nil optional fields are absent from the report
// and leave the canonical point's value untouched on merge.
type Observation struct {
	ID                string
	Latitude          float64
	Longitude         float64
	Level             *Level
	VehicleCount      *int
	AmbulanceDetected *bool
	LocationName      *string
	Timestamp         *time.Time
	UserID            *string
}

// Stats are the aggregate statistics over the canonical collection, fully
// recomputed after every merge.
type Stats struct {
	TotalVehicles       int       `json:"total_vehicles"`
	CongestedPointCount int       `json:"congested_point_count"`
	AverageSpeedKmh     float64   `json:"average_speed_kmh"`
	PointCount          int       `json:"point_count"`
	LastUpdated         time.Time `json:"last_updated"`
}

// SeedLocation is a named coordinate used for synthetic demo seeding.
type SeedLocation struct {
	Name      string
	Latitude  float64
	Longitude float64
}
