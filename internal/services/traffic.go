package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lucsky/cuid"
	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/cache"
	"github.com/nammatraffic/server/internal/clients/backend"
	"github.com/nammatraffic/server/internal/clients/push"
	"github.com/nammatraffic/server/internal/lib/geo"
	"github.com/nammatraffic/server/internal/lib/points"
	"github.com/nammatraffic/server/internal/lib/signal"
)

// Data-source status as reported on the stats surface.
const (
	StatusLive      = "live"
	StatusDegraded  = "degraded"
	StatusSimulated = "simulated"
)

// Cache keys for backend snapshots.
const (
	cacheKeyLatestTraffic     = "latest_traffic"
	cacheKeyCollectiveTraffic = "collective_traffic"
	cacheKeyActiveUsers       = "active_users"
	cacheKeyAvailableCameras  = "available_cameras"
	cacheKeyRoadNetwork       = "road_network"
)

// trafficBackend is the slice of the backend the traffic service polls and
// submits to.
type trafficBackend interface {
	LatestTraffic(ctx context.Context) (*backend.LatestTrafficResponse, error)
	CollectiveTraffic(ctx context.Context) (*backend.CollectiveTrafficResponse, error)
	ActiveUsers(ctx context.Context) (*backend.ActiveUsersResponse, error)
	AvailableCameras(ctx context.Context) (*backend.AvailableCamerasResponse, error)
	RoadNetwork(ctx context.Context) (*backend.RoadNetworkResponse, error)
	SubmitTraffic(ctx context.Context, req backend.SubmitTrafficRequest) (*backend.SubmitTrafficResponse, error)
}

// Report is one locally submitted traffic observation: per-lane vehicle
// counts plus an optional reporter position.
type Report struct {
	Lane1             int     `json:"lane_1"`
	Lane2             int     `json:"lane_2"`
	Lane3             int     `json:"lane_3"`
	AmbulanceDetected bool    `json:"ambulance_detected"`
	UserID            string  `json:"user_id,omitempty"`
	Latitude          float64 `json:"lat,omitempty"`
	Longitude         float64 `json:"lng,omitempty"`
	LocationName      string  `json:"location_name,omitempty"`
}

// trafficUpdatePayload is the push channel's traffic_update data shape.
type trafficUpdatePayload struct {
	Lane1             int     `json:"lane_1"`
	Lane2             int     `json:"lane_2"`
	Lane3             int     `json:"lane_3"`
	AmbulanceDetected bool    `json:"ambulance_detected"`
	UserID            string  `json:"user_id"`
	Timestamp         string  `json:"timestamp"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Location          string  `json:"location"`
}

// TrafficService maintains the canonical observation collection. It polls
// the backend, ingests push envelopes, accepts local submissions, and runs
// signal arbitration over the latest lane totals. When no real data ever
// arrives it seeds a synthetic demo dataset so downstream consumers always
// have something to render.
type TrafficService struct {
	engine          *points.Engine
	api             trafficBackend
	snapshots       *cache.Cache
	pollingInterval time.Duration
	seedLocations   []points.SeedLocation
	seedCount       int
	logger          *zap.Logger
	now             func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}

	mu             sync.RWMutex
	laneTotals     [signal.LaneCount]int
	ambulance      bool
	backendHealthy bool
	lastPoll       time.Time
}

// NewTrafficService wires the traffic service. The api may be nil for a
// fully local (simulated) deployment.
func NewTrafficService(engine *points.Engine, api trafficBackend, snapshots *cache.Cache, pollingInterval time.Duration, seedLocations []points.SeedLocation, seedCount int, logger *zap.Logger) *TrafficService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapshots == nil {
		snapshots = cache.New()
	}
	if pollingInterval <= 0 {
		pollingInterval = 10 * time.Second
	}
	return &TrafficService{
		engine:          engine,
		api:             api,
		snapshots:       snapshots,
		pollingInterval: pollingInterval,
		seedLocations:   seedLocations,
		seedCount:       seedCount,
		logger:          logger,
		now:             time.Now,
		stopChan:        make(chan struct{}),
	}
}

// Run polls the backend until the context is canceled or Stop is called.
// The first poll happens immediately.
func (s *TrafficService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	s.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Stop ends the polling loop.
func (s *TrafficService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Refresh performs one backend poll: latest lane totals, the collective
// aggregate, the active user count, and the camera count. A failed poll
// marks the service degraded. Whenever no real observation has ever
// arrived, healthy poll or not, the synthetic seed kicks in.
func (s *TrafficService) Refresh(ctx context.Context) {
	if s.api == nil {
		s.seedIfEmpty()
		return
	}

	healthy := true

	if latest, err := s.api.LatestTraffic(ctx); err != nil {
		s.logger.Warn("latest traffic poll failed", zap.Error(err))
		healthy = false
	} else {
		if err := s.snapshots.Set(cacheKeyLatestTraffic, latest, s.pollingInterval, "backend"); err != nil {
			s.logger.Warn("failed to cache latest traffic", zap.Error(err))
		}
		s.mu.Lock()
		s.laneTotals = [signal.LaneCount]int{latest.Lane1, latest.Lane2, latest.Lane3}
		s.ambulance = latest.AmbulanceDetected
		s.mu.Unlock()
	}

	if collective, err := s.api.CollectiveTraffic(ctx); err != nil {
		s.logger.Warn("collective traffic poll failed", zap.Error(err))
		healthy = false
	} else if err := s.snapshots.Set(cacheKeyCollectiveTraffic, collective, s.pollingInterval, "backend"); err != nil {
		s.logger.Warn("failed to cache collective traffic", zap.Error(err))
	}

	if users, err := s.api.ActiveUsers(ctx); err != nil {
		s.logger.Warn("active users poll failed", zap.Error(err))
	} else if err := s.snapshots.Set(cacheKeyActiveUsers, users, s.pollingInterval, "backend"); err != nil {
		s.logger.Warn("failed to cache active users", zap.Error(err))
	}

	if cameras, err := s.api.AvailableCameras(ctx); err != nil {
		s.logger.Warn("camera count poll failed", zap.Error(err))
	} else if err := s.snapshots.Set(cacheKeyAvailableCameras, cameras, s.pollingInterval, "backend"); err != nil {
		s.logger.Warn("failed to cache camera count", zap.Error(err))
	}

	s.mu.Lock()
	s.backendHealthy = healthy
	s.lastPoll = s.now()
	s.mu.Unlock()

	// A healthy backend can still yield zero point-bearing observations;
	// downstream consumers must never see a blank collection.
	s.seedIfEmpty()
}

// ConsumePush ingests envelopes from the push channel until it closes or the
// context is canceled. Malformed payloads are skipped.
func (s *TrafficService) ConsumePush(ctx context.Context, messages <-chan push.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-messages:
			if !ok {
				return
			}
			s.handleEnvelope(env)
		}
	}
}

func (s *TrafficService) handleEnvelope(env push.Envelope) {
	switch env.Type {
	case push.TypeTrafficUpdate:
		var payload trafficUpdatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("skipping malformed traffic update", zap.Error(err))
			return
		}
		s.applyUpdate(payload)

	case push.TypeCollectiveUpdate:
		var payload backend.CollectiveTrafficResponse
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("skipping malformed collective update", zap.Error(err))
			return
		}
		if err := s.snapshots.Set(cacheKeyCollectiveTraffic, &payload, s.pollingInterval, "push"); err != nil {
			s.logger.Warn("failed to cache collective update", zap.Error(err))
		}

	case push.TypeActiveUsers:
		var payload backend.ActiveUsersResponse
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Warn("skipping malformed active users update", zap.Error(err))
			return
		}
		if err := s.snapshots.Set(cacheKeyActiveUsers, &payload, s.pollingInterval, "push"); err != nil {
			s.logger.Warn("failed to cache active users update", zap.Error(err))
		}

	case push.TypeSignalUpdate:
		// Signals are derived locally from lane totals; the broadcast
		// carries no information we do not already have.

	default:
		s.logger.Debug("ignoring unknown push envelope", zap.String("type", env.Type))
	}
}

// applyUpdate folds a pushed traffic update into the lane totals and, when
// it carries a position, into the observation collection.
func (s *TrafficService) applyUpdate(payload trafficUpdatePayload) {
	s.mu.Lock()
	s.laneTotals = [signal.LaneCount]int{payload.Lane1, payload.Lane2, payload.Lane3}
	s.ambulance = payload.AmbulanceDetected
	s.mu.Unlock()

	if payload.Lat == 0 && payload.Lng == 0 {
		return
	}

	total := payload.Lane1 + payload.Lane2 + payload.Lane3
	level := points.LevelForVehicleCount(total)
	obs := points.Observation{
		Latitude:          payload.Lat,
		Longitude:         payload.Lng,
		Level:             &level,
		VehicleCount:      &total,
		AmbulanceDetected: &payload.AmbulanceDetected,
	}
	if payload.UserID != "" {
		obs.UserID = &payload.UserID
	}
	if payload.Location != "" {
		obs.LocationName = &payload.Location
	}
	if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
		obs.Timestamp = &ts
	}
	if _, err := s.engine.Merge(obs); err != nil {
		s.logger.Warn("failed to merge pushed observation", zap.Error(err))
	}
}

// Submit records a local traffic report. The report is merged into the
// canonical collection immediately and forwarded to the backend on a best
// effort basis; a backend failure does not fail the submission.
func (s *TrafficService) Submit(ctx context.Context, report Report) (points.TrafficPoint, error) {
	total := report.Lane1 + report.Lane2 + report.Lane3
	if total < 0 {
		return points.TrafficPoint{}, fmt.Errorf("submit report: negative vehicle count")
	}

	s.mu.Lock()
	s.laneTotals = [signal.LaneCount]int{report.Lane1, report.Lane2, report.Lane3}
	s.ambulance = report.AmbulanceDetected
	s.mu.Unlock()

	var merged points.TrafficPoint
	if geo.IsValid(geo.Point{Latitude: report.Latitude, Longitude: report.Longitude}) &&
		!(report.Latitude == 0 && report.Longitude == 0) {
		level := points.LevelForVehicleCount(total)
		obs := points.Observation{
			ID:                cuid.New(),
			Latitude:          report.Latitude,
			Longitude:         report.Longitude,
			Level:             &level,
			VehicleCount:      &total,
			AmbulanceDetected: &report.AmbulanceDetected,
		}
		if report.UserID != "" {
			obs.UserID = &report.UserID
		}
		if report.LocationName != "" {
			obs.LocationName = &report.LocationName
		}
		var err error
		merged, err = s.engine.Merge(obs)
		if err != nil {
			return points.TrafficPoint{}, fmt.Errorf("submit report: %w", err)
		}
	}

	if s.api != nil {
		req := backend.SubmitTrafficRequest{
			Lane1:             report.Lane1,
			Lane2:             report.Lane2,
			Lane3:             report.Lane3,
			AmbulanceDetected: report.AmbulanceDetected,
			UserID:            report.UserID,
			Timestamp:         s.now().UTC().Format(time.RFC3339),
		}
		if _, err := s.api.SubmitTraffic(ctx, req); err != nil {
			s.logger.Warn("backend submission failed, report kept locally", zap.Error(err))
		}
	}

	return merged, nil
}

// Points returns the canonical observation collection.
func (s *TrafficService) Points() []points.TrafficPoint {
	return s.engine.Points()
}

// Stats returns aggregate statistics over the collection.
func (s *TrafficService) Stats() points.Stats {
	return s.engine.Stats()
}

// Signals arbitrates the traffic signals from the latest lane totals.
func (s *TrafficService) Signals() [signal.LaneCount]signal.LaneSignal {
	s.mu.RLock()
	totals := s.laneTotals
	s.mu.RUnlock()

	return signal.Arbitrate(totals)
}

// LaneTotals returns the latest per-lane vehicle counts and whether an
// ambulance was detected.
func (s *TrafficService) LaneTotals() ([signal.LaneCount]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.laneTotals, s.ambulance
}

// Status reports the data-source status: live while the backend answers,
// degraded when it stops answering but real data has been seen, simulated
// when only synthetic data exists.
func (s *TrafficService) Status() string {
	s.mu.RLock()
	healthy := s.backendHealthy
	s.mu.RUnlock()

	if healthy {
		return StatusLive
	}
	if s.engine.HasRealData() {
		return StatusDegraded
	}
	return StatusSimulated
}

// Collective returns the most recent collective traffic snapshot, fresh or
// stale. Stale snapshots are still served so a backend outage does not blank
// the aggregate view.
func (s *TrafficService) Collective() (*backend.CollectiveTrafficResponse, bool) {
	var snapshot backend.CollectiveTrafficResponse
	entry, found, err := s.snapshots.GetWithMetadata(cacheKeyCollectiveTraffic, &snapshot)
	if err != nil || !found {
		return nil, false
	}
	if s.snapshots.IsVeryStale(entry.Key) {
		return nil, false
	}
	return &snapshot, true
}

// ActiveUserCount returns the cached active user count, or zero when no
// snapshot is available.
func (s *TrafficService) ActiveUserCount() int {
	var snapshot backend.ActiveUsersResponse
	if _, found, err := s.snapshots.GetWithMetadata(cacheKeyActiveUsers, &snapshot); err != nil || !found {
		return 0
	}
	return snapshot.Count
}

// ActiveCameraCount returns the cached streaming camera count, falling back
// to the count carried on the active users snapshot.
func (s *TrafficService) ActiveCameraCount() int {
	var cameras backend.AvailableCamerasResponse
	if _, found, err := s.snapshots.GetWithMetadata(cacheKeyAvailableCameras, &cameras); err == nil && found {
		return cameras.Count
	}

	var users backend.ActiveUsersResponse
	if _, found, err := s.snapshots.GetWithMetadata(cacheKeyActiveUsers, &users); err == nil && found {
		return users.ActiveCameras
	}
	return 0
}

// RoadNetwork returns the backend's road network overlay, fetched on demand
// and cached between calls. A backend failure serves the last snapshot until
// it goes very stale.
func (s *TrafficService) RoadNetwork(ctx context.Context) (*backend.RoadNetworkResponse, error) {
	var snapshot backend.RoadNetworkResponse
	if found, err := s.snapshots.Get(cacheKeyRoadNetwork, &snapshot); err == nil && found {
		return &snapshot, nil
	}

	if s.api == nil {
		return nil, fmt.Errorf("road network: no backend configured")
	}

	network, err := s.api.RoadNetwork(ctx)
	if err != nil {
		var stale backend.RoadNetworkResponse
		if _, found, cacheErr := s.snapshots.GetWithMetadata(cacheKeyRoadNetwork, &stale); cacheErr == nil && found &&
			!s.snapshots.IsVeryStale(cacheKeyRoadNetwork) {
			return &stale, nil
		}
		return nil, fmt.Errorf("road network fetch failed: %w", err)
	}

	if err := s.snapshots.Set(cacheKeyRoadNetwork, network, s.pollingInterval, "backend"); err != nil {
		s.logger.Warn("failed to cache road network", zap.Error(err))
	}
	return network, nil
}

func (s *TrafficService) seedIfEmpty() {
	if s.engine.HasRealData() || len(s.seedLocations) == 0 {
		return
	}
	if n := s.engine.SeedSynthetic(s.seedLocations, s.seedCount); n > 0 {
		s.logger.Info("seeded synthetic traffic points", zap.Int("count", n))
	}
}
