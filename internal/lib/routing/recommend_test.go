package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nammatraffic/server/internal/lib/geo"
)

func makeRoute(t RouteType, distance, duration float64) *Route {
	r := &Route{
		Geometry: []geo.Point{
			{Latitude: 12.9774, Longitude: 77.5708},
			{Latitude: 12.9758, Longitude: 77.6096},
		},
		DistanceMeters:  distance,
		DurationSeconds: duration,
		Type:            t,
		Confidence:      0.9,
	}
	_ = r.ComputeBounds()
	return r
}

func TestRecommend_PriorityOrder(t *testing.T) {
	ai := makeRoute(AIOptimized, 5000, 900)
	enhanced := makeRoute(Enhanced, 5200, 950)
	fast := makeRoute(Optimal, 6000, 600)
	short := makeRoute(Alternative, 4000, 1200)

	recs := Recommend([]*Route{short, fast, enhanced, ai})
	require.Len(t, recs, 4)

	assert.Equal(t, AIOptimized, recs[0].Category)
	assert.Same(t, ai, recs[0].Route)
	assert.Equal(t, Enhanced, recs[1].Category)
	assert.Same(t, enhanced, recs[1].Route)
	assert.Equal(t, TimeSaver, recs[2].Category)
	assert.Same(t, fast, recs[2].Route)
	assert.Equal(t, DistanceSaver, recs[3].Category)
	assert.Same(t, short, recs[3].Route)
}

func TestRecommend_NoDuplicateRoutes(t *testing.T) {
	// One route that is simultaneously AI-optimized, fastest and shortest
	only := makeRoute(AIOptimized, 3000, 500)

	recs := Recommend([]*Route{only})
	require.Len(t, recs, 1)
	assert.Equal(t, AIOptimized, recs[0].Category)

	// The fastest route is also the shortest: claimed once, by TIME_SAVER
	fast := makeRoute(Optimal, 3000, 500)
	other := makeRoute(Alternative, 5000, 900)
	recs = Recommend([]*Route{fast, other})

	seen := make(map[*Route]bool)
	for _, rec := range recs {
		assert.False(t, seen[rec.Route], "Route object claimed twice")
		seen[rec.Route] = true
	}
}

func TestRecommend_FiltersInvalidRoutes(t *testing.T) {
	invalid := makeRoute(AIOptimized, 0, 0)
	recs := Recommend([]*Route{invalid})
	assert.Empty(t, recs, "No valid route means no recommendations")

	recs = Recommend(nil)
	assert.Empty(t, recs)
}

func TestRecommend_IdenticalValuesDistinctObjects(t *testing.T) {
	// Numerically identical but independently fetched routes are distinct
	// objects and may both appear.
	a := makeRoute(AIOptimized, 5000, 900)
	b := makeRoute(Enhanced, 5000, 900)

	recs := Recommend([]*Route{a, b})
	require.Len(t, recs, 2)
	assert.Same(t, a, recs[0].Route)
	assert.Same(t, b, recs[1].Route)
}

func TestRouteBoundsCoverGeometry(t *testing.T) {
	r := makeRoute(Optimal, 5000, 900)
	for _, p := range r.Geometry {
		assert.True(t, r.Bounds.Contains(p))
	}
}

func TestRouteUsable(t *testing.T) {
	assert.False(t, (*Route)(nil).Usable())
	assert.False(t, (&Route{}).Usable())
	assert.True(t, makeRoute(Direct, 100, 60).Usable())
}
