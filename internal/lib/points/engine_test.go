package points

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultProximityThresholdDegrees, rand.New(rand.NewSource(42)), zap.NewNop())
}

func intp(v int) *int       { return &v }
func levelp(l Level) *Level { return &l }
func boolp(v bool) *bool    { return &v }
func strp(s string) *string { return &s }

func TestMerge_NewPoint(t *testing.T) {
	e := newTestEngine()

	point, err := e.Merge(Observation{
		ID:           "obs-1",
		Latitude:     12.9774,
		Longitude:    77.5708,
		Level:        levelp(LevelHigh),
		VehicleCount: intp(22),
		LocationName: strp("Majestic Bus Station"),
	})
	require.NoError(t, err)

	assert.Equal(t, "obs-1", point.ID)
	assert.Equal(t, LevelHigh, point.Level)
	assert.Equal(t, 22, point.VehicleCount)
	assert.Len(t, e.Points(), 1)

	stats := e.Stats()
	assert.Equal(t, 22, stats.TotalVehicles)
	assert.Equal(t, 1, stats.CongestedPointCount)
	assert.Equal(t, 1, stats.PointCount)
}

func TestMerge_Idempotent(t *testing.T) {
	e := newTestEngine()

	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	obs := Observation{
		ID:           "obs-1",
		Latitude:     12.9758,
		Longitude:    77.6096,
		Level:        levelp(LevelMedium),
		VehicleCount: intp(12),
		Timestamp:    &ts,
	}

	first, err := e.Merge(obs)
	require.NoError(t, err)
	second, err := e.Merge(obs)
	require.NoError(t, err)

	assert.Equal(t, first, second, "Merging the same observation twice must not change state")
	assert.Len(t, e.Points(), 1)
	assert.Equal(t, 12, e.Stats().TotalVehicles)
}

func TestMerge_CommutativeForNonConflicting(t *testing.T) {
	a := Observation{ID: "a", Latitude: 12.9352, Longitude: 77.6245, VehicleCount: intp(5), Level: levelp(LevelLow)}
	b := Observation{ID: "b", Latitude: 13.0358, Longitude: 77.5970, VehicleCount: intp(9), Level: levelp(LevelMedium)}

	e1 := newTestEngine()
	e1.MergeAll([]Observation{a, b})

	e2 := newTestEngine()
	e2.MergeAll([]Observation{b, a})

	p1 := e1.Points()
	p2 := e2.Points()
	require.Len(t, p1, 2)
	require.Len(t, p2, 2)

	byID := func(pts []TrafficPoint) map[string]TrafficPoint {
		m := make(map[string]TrafficPoint)
		for _, p := range pts {
			p.Timestamp = time.Time{} // creation instants differ per engine
			m[p.ID] = p
		}
		return m
	}
	assert.Equal(t, byID(p1), byID(p2), "Final state must be independent of arrival order")
	assert.Equal(t, e1.Stats().TotalVehicles, e2.Stats().TotalVehicles)
}

func TestMerge_ProximityDeduplication(t *testing.T) {
	e := newTestEngine()

	_, err := e.Merge(Observation{ID: "first", Latitude: 12.97000, Longitude: 77.59000, VehicleCount: intp(3)})
	require.NoError(t, err)

	// Same physical point: within 0.001 degrees, different id never assigned
	_, err = e.Merge(Observation{Latitude: 12.97040, Longitude: 77.59040, VehicleCount: intp(8)})
	require.NoError(t, err)

	pts := e.Points()
	require.Len(t, pts, 1, "Nearby observation updates the existing point")
	assert.Equal(t, 8, pts[0].VehicleCount)

	// Clearly beyond the threshold: a new point
	_, err = e.Merge(Observation{Latitude: 12.98100, Longitude: 77.59000, VehicleCount: intp(2)})
	require.NoError(t, err)
	assert.Len(t, e.Points(), 2)
}

func TestMerge_PartialUpdateKeepsAbsentFields(t *testing.T) {
	e := newTestEngine()

	_, err := e.Merge(Observation{
		ID:           "p",
		Latitude:     12.9719,
		Longitude:    77.6412,
		Level:        levelp(LevelHigh),
		VehicleCount: intp(25),
		LocationName: strp("Indiranagar"),
		UserID:       strp("user-1"),
	})
	require.NoError(t, err)

	// Newer observation carries only a vehicle count
	point, err := e.Merge(Observation{ID: "p", Latitude: 12.9719, Longitude: 77.6412, VehicleCount: intp(4)})
	require.NoError(t, err)

	assert.Equal(t, 4, point.VehicleCount)
	assert.Equal(t, LevelHigh, point.Level, "Absent fields keep their canonical values")
	assert.Equal(t, "Indiranagar", point.LocationName)
	assert.Equal(t, "user-1", point.UserID)
}

func TestMerge_RejectsInvalidCoordinates(t *testing.T) {
	e := newTestEngine()
	_, err := e.Merge(Observation{Latitude: 200, Longitude: 77})
	assert.Error(t, err)
	assert.Empty(t, e.Points())
}

func TestMerge_AmbulanceFlag(t *testing.T) {
	e := newTestEngine()
	point, err := e.Merge(Observation{ID: "amb", Latitude: 12.9, Longitude: 77.6, AmbulanceDetected: boolp(true)})
	require.NoError(t, err)
	assert.True(t, point.AmbulanceDetected)
}

func TestStats_Recomputed(t *testing.T) {
	e := newTestEngine()

	e.MergeAll([]Observation{
		{ID: "a", Latitude: 12.90, Longitude: 77.50, VehicleCount: intp(5), Level: levelp(LevelLow)},
		{ID: "b", Latitude: 12.92, Longitude: 77.52, VehicleCount: intp(12), Level: levelp(LevelMedium)},
		{ID: "c", Latitude: 12.94, Longitude: 77.54, VehicleCount: intp(30), Level: levelp(LevelHigh)},
	})

	stats := e.Stats()
	assert.Equal(t, 47, stats.TotalVehicles)
	assert.Equal(t, 2, stats.CongestedPointCount)
	assert.Equal(t, 3, stats.PointCount)
	assert.Equal(t, 20.0, stats.AverageSpeedKmh, "47 vehicles total means heavy traffic speed")
	assert.False(t, stats.LastUpdated.IsZero())

	// Updating a point fully recomputes, never drifts
	_, err := e.Merge(Observation{ID: "c", Latitude: 12.94, Longitude: 77.54, VehicleCount: intp(1), Level: levelp(LevelLow)})
	require.NoError(t, err)
	stats = e.Stats()
	assert.Equal(t, 18, stats.TotalVehicles)
	assert.Equal(t, 1, stats.CongestedPointCount)
}

func TestSeedSynthetic(t *testing.T) {
	locations := []SeedLocation{
		{Name: "Majestic Bus Station", Latitude: 12.9774, Longitude: 77.5708},
		{Name: "MG Road", Latitude: 12.9758, Longitude: 77.6096},
	}

	e := newTestEngine()
	n := e.SeedSynthetic(locations, 6)
	assert.Equal(t, 6, n)
	assert.Len(t, e.Points(), 6)
	assert.False(t, e.HasRealData(), "Synthetic seeding is not real data")

	for _, p := range e.Points() {
		assert.True(t, p.Synthetic)
		assert.NotEmpty(t, p.LocationName)
		assert.GreaterOrEqual(t, p.VehicleCount, 0)
	}

	// Seeding twice is a no-op
	assert.Zero(t, e.SeedSynthetic(locations, 6))
	assert.Len(t, e.Points(), 6)

	// Seeded RNG makes the fallback reproducible
	e2 := newTestEngine()
	e2.SeedSynthetic(locations, 6)
	assert.Equal(t, stripTimestamps(e.Points()), stripTimestamps(e2.Points()))
}

func TestSeedSynthetic_SkippedAfterRealData(t *testing.T) {
	e := newTestEngine()
	_, err := e.Merge(Observation{ID: "real", Latitude: 12.9, Longitude: 77.6, VehicleCount: intp(2)})
	require.NoError(t, err)

	assert.True(t, e.HasRealData())
	assert.Zero(t, e.SeedSynthetic([]SeedLocation{{Name: "x", Latitude: 12.9, Longitude: 77.6}}, 4))
	assert.Len(t, e.Points(), 1)
}

func stripTimestamps(pts []TrafficPoint) []TrafficPoint {
	out := make([]TrafficPoint, len(pts))
	for i, p := range pts {
		p.Timestamp = time.Time{}
		out[i] = p
	}
	return out
}
