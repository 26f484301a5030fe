// Package points maintains the canonical, deduplicated collection of traffic
// observation points. All mutation goes through Engine.Merge; no other
// component touches the collection.
package points

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jaswdr/faker"
	"go.uber.org/zap"
)

// DefaultProximityThresholdDegrees is the coordinate distance below which two
// observations without a shared id are treated as the same physical point.
// 0.001 degrees is roughly 100m at the equator.
const DefaultProximityThresholdDegrees = 0.001

// Engine reconciles observations arriving unordered, possibly duplicated,
// from independent channels into one canonical point set. Merge is idempotent
// and commutative for non-conflicting observations, so arrival order does not
// affect the final state.
type Engine struct {
	mu        sync.RWMutex
	points    []*TrafficPoint
	stats     Stats
	threshold float64
	sawReal   bool

	rng    *rand.Rand
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a merge engine. The random source drives synthetic
// seeding only; inject a fixed seed for reproducible fallback data.
func NewEngine(thresholdDegrees float64, rng *rand.Rand, logger *zap.Logger) *Engine {
	if thresholdDegrees <= 0 {
		thresholdDegrees = DefaultProximityThresholdDegrees
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		threshold: thresholdDegrees,
		rng:       rng,
		now:       time.Now,
		logger:    logger.Named("merge"),
	}
}

// Merge absorbs one observation into the canonical collection and recomputes
// aggregates. An existing point is matched by id first, then by proximity;
// only fields present in the observation replace the canonical values. The
// returned point is the canonical state after the merge.
func (e *Engine) Merge(obs Observation) (TrafficPoint, error) {
	if obs.Latitude < -90 || obs.Latitude > 90 || obs.Longitude < -180 || obs.Longitude > 180 {
		return TrafficPoint{}, errors.New("observation has invalid coordinates")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	point := e.find(obs)
	if point == nil {
		point = &TrafficPoint{
			ID:        obs.ID,
			Latitude:  obs.Latitude,
			Longitude: obs.Longitude,
			Level:     LevelLow,
			Timestamp: e.now(),
		}
		if point.ID == "" {
			point.ID = fmt.Sprintf("pt-%d", len(e.points)+1)
		}
		e.points = append(e.points, point)
	}

	e.apply(point, obs)
	e.sawReal = true
	e.recompute()

	return *point, nil
}

// MergeAll absorbs a batch of observations, skipping invalid ones.
func (e *Engine) MergeAll(observations []Observation) {
	for _, obs := range observations {
		if _, err := e.Merge(obs); err != nil {
			e.logger.Warn("dropping invalid observation", zap.String("id", obs.ID), zap.Error(err))
		}
	}
}

// find locates an existing canonical point for the observation: id match
// first, proximity match otherwise. Caller holds the lock.
func (e *Engine) find(obs Observation) *TrafficPoint {
	if obs.ID != "" {
		for _, p := range e.points {
			if p.ID == obs.ID {
				return p
			}
		}
	}
	for _, p := range e.points {
		if math.Abs(p.Latitude-obs.Latitude) < e.threshold &&
			math.Abs(p.Longitude-obs.Longitude) < e.threshold {
			return p
		}
	}
	return nil
}

// apply performs the partial update: only fields present in the observation
// replace canonical values.
func (e *Engine) apply(point *TrafficPoint, obs Observation) {
	point.Latitude = obs.Latitude
	point.Longitude = obs.Longitude
	point.Synthetic = false

	if obs.Level != nil {
		point.Level = *obs.Level
	}
	if obs.VehicleCount != nil {
		point.VehicleCount = *obs.VehicleCount
	}
	if obs.AmbulanceDetected != nil {
		point.AmbulanceDetected = *obs.AmbulanceDetected
	}
	if obs.LocationName != nil {
		point.LocationName = *obs.LocationName
	}
	if obs.UserID != nil {
		point.UserID = *obs.UserID
	}
	if obs.Timestamp != nil {
		point.Timestamp = *obs.Timestamp
	}
}

// recompute rebuilds every aggregate from scratch. Never incremental, so the
// stats cannot drift from the collection. Caller holds the lock.
func (e *Engine) recompute() {
	stats := Stats{
		PointCount:  len(e.points),
		LastUpdated: e.now(),
	}
	for _, p := range e.points {
		stats.TotalVehicles += p.VehicleCount
		if p.Level == LevelMedium || p.Level == LevelHigh {
			stats.CongestedPointCount++
		}
	}
	stats.AverageSpeedKmh = AverageSpeedKmh(stats.TotalVehicles)
	e.stats = stats
}

// Points returns a copy of the canonical collection.
func (e *Engine) Points() []TrafficPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]TrafficPoint, len(e.points))
	for i, p := range e.points {
		out[i] = *p
	}
	return out
}

// Stats returns the current aggregate statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// HasRealData reports whether any real observation has ever been merged.
// Synthetic seeding does not count.
func (e *Engine) HasRealData() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sawReal
}

// SeedSynthetic populates the collection with plausible demo points at the
// given locations when no real observation has ever arrived. This is the
// deliberate fallback-data policy, not an error state: downstream consumers
// always have something to show. Calling it after real data arrived, or
// twice, is a no-op.
func (e *Engine) SeedSynthetic(locations []SeedLocation, count int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sawReal || len(e.points) > 0 || len(locations) == 0 || count <= 0 {
		return 0
	}

	fake := faker.NewWithSeed(rand.NewSource(e.rng.Int63()))
	levels := []Level{LevelLow, LevelMedium, LevelHigh}

	for i := 0; i < count; i++ {
		loc := locations[e.rng.Intn(len(locations))]
		// Scatter within ~300m of the seed location
		jitter := func() float64 { return (e.rng.Float64() - 0.5) * 0.006 }

		level := levels[e.rng.Intn(len(levels))]
		point := &TrafficPoint{
			ID:           fmt.Sprintf("demo-%d", i+1),
			Latitude:     loc.Latitude + jitter(),
			Longitude:    loc.Longitude + jitter(),
			Level:        level,
			VehicleCount: e.rng.Intn(25),
			LocationName: loc.Name,
			UserID:       fmt.Sprintf("demo-%s", fake.Internet().User()),
			Timestamp:    e.now(),
			Synthetic:    true,
		}
		e.points = append(e.points, point)
	}

	e.recompute()
	e.logger.Info("seeded synthetic traffic points", zap.Int("count", count))
	return count
}
