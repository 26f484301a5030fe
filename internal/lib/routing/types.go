package routing

import (
	"github.com/nammatraffic/server/internal/lib/geo"
)

// RouteType classifies how a route was obtained and what it optimizes for.
type RouteType string

const (
	AIOptimized   RouteType = "AI_OPTIMIZED"
	Enhanced      RouteType = "ENHANCED"
	Optimal       RouteType = "OPTIMAL"
	Alternative   RouteType = "ALTERNATIVE"
	TimeSaver     RouteType = "TIME_SAVER"
	DistanceSaver RouteType = "DISTANCE_SAVER"
	Scenic        RouteType = "SCENIC"
	Direct        RouteType = "DIRECT"
)

// Route is a computed or approximated path between two coordinates.
type Route struct {
	Geometry        []geo.Point `json:"geometry"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Type            RouteType   `json:"type"`
	Confidence      float64     `json:"confidence"`
	Bounds          geo.Bounds  `json:"bounds"`
	IsFallback      bool        `json:"is_fallback"`
}

// Usable reports whether the route can be shown and ranked: it must carry
// geometry and positive distance and duration.
func (r *Route) Usable() bool {
	return r != nil && len(r.Geometry) > 0 && r.DistanceMeters > 0 && r.DurationSeconds > 0
}

// ComputeBounds derives the route's bounding box from its geometry, extended
// to cover any extra points (for fallback routes, the original start/end).
func (r *Route) ComputeBounds(extra ...geo.Point) error {
	bounds, err := geo.BoundsFromPoints(r.Geometry)
	if err != nil {
		return err
	}
	for _, p := range extra {
		bounds = bounds.Extend(p)
	}
	r.Bounds = bounds
	return nil
}

// Recommendation is a labeled pointer to one route with a rank category.
type Recommendation struct {
	Category    RouteType `json:"category"`
	Route       *Route    `json:"route"`
	Description string    `json:"description"`
}
