package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/clients/backend"
	"github.com/nammatraffic/server/internal/clients/osrm"
	"github.com/nammatraffic/server/internal/lib/geo"
	"github.com/nammatraffic/server/internal/lib/routing"
)

const (
	fallbackConfidence = 0.3
	fallbackSamples    = 21
	recalcTimeout      = 30 * time.Second
)

// routeBackend is the slice of the collective-traffic backend used for
// route acquisition.
type routeBackend interface {
	OptimizeRouteMultiUser(ctx context.Context, req backend.RouteCoordsRequest) (*backend.OptimizeRouteResponse, error)
	StartEndRoute(ctx context.Context, req backend.RouteCoordsRequest) (*backend.StartEndRouteResponse, error)
}

// roadRouter is the slice of the OSRM client used for route acquisition.
type roadRouter interface {
	Route(ctx context.Context, start, end geo.Point) ([]osrm.RouteData, error)
}

// RouteSession holds one user's route planning state. Changing either
// endpoint discards all previously acquired routes and the selection.
type RouteSession struct {
	ID              string                   `json:"id"`
	UserID          string                   `json:"user_id"`
	Start           *geo.Point               `json:"start,omitempty"`
	End             *geo.Point               `json:"end,omitempty"`
	Routes          []*routing.Route         `json:"routes"`
	Recommendations []routing.Recommendation `json:"recommendations"`
	Selected        *routing.Route           `json:"selected,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// RoutesService acquires routes from the collective-traffic backend and the
// road router, degrading to a synthesized direct route when every source
// fails. It also tracks per-session planning state.
type RoutesService struct {
	backend     routeBackend
	router      roadRouter
	avgSpeedKmh float64
	debounce    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	sessions map[string]*RouteSession
	timers   map[string]*time.Timer
}

// NewRoutesService wires a route service. Either source may be nil; the
// service still always produces at least one route.
func NewRoutesService(api routeBackend, router roadRouter, avgSpeedKmh float64, debounce time.Duration, rng *rand.Rand, logger *zap.Logger) *RoutesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 30
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RoutesService{
		backend:     api,
		router:      router,
		avgSpeedKmh: avgSpeedKmh,
		debounce:    debounce,
		logger:      logger,
		now:         time.Now,
		rng:         rng,
		sessions:    make(map[string]*RouteSession),
		timers:      make(map[string]*time.Timer),
	}
}

// AcquireRoutes gathers routes from all sources for a start/end pair. The
// result is never empty: when the backend and the road router both fail, a
// synthesized direct route stands in, flagged as a fallback.
func (s *RoutesService) AcquireRoutes(ctx context.Context, start, end geo.Point, userID string) ([]*routing.Route, error) {
	if !geo.IsValid(start) || !geo.IsValid(end) {
		return nil, fmt.Errorf("acquire routes: invalid coordinates")
	}

	var routes []*routing.Route
	routes = append(routes, s.backendRoutes(ctx, start, end, userID)...)
	routes = append(routes, s.routerRoutes(ctx, start, end)...)

	if len(routes) == 0 {
		fallback, err := s.fallbackRoute(start, end)
		if err != nil {
			return nil, fmt.Errorf("acquire routes: %w", ErrNoRouteAvailable)
		}
		s.logger.Warn("all routing sources failed, serving direct fallback route",
			zap.Float64("start_lat", start.Latitude),
			zap.Float64("end_lat", end.Latitude))
		routes = append(routes, fallback)
	}

	return routes, nil
}

// backendRoutes queries the collective optimizer and the start/end planner.
// Failures are logged, never fatal.
func (s *RoutesService) backendRoutes(ctx context.Context, start, end geo.Point, userID string) []*routing.Route {
	if s.backend == nil {
		return nil
	}

	req := backend.RouteCoordsRequest{
		StartLat: start.Latitude,
		StartLng: start.Longitude,
		EndLat:   end.Latitude,
		EndLng:   end.Longitude,
		UserID:   userID,
	}

	var routes []*routing.Route

	if resp, err := s.backend.OptimizeRouteMultiUser(ctx, req); err != nil {
		s.logger.Warn("multi-user optimizer unavailable", zap.Error(err))
	} else {
		if resp.OptimalRoute != nil {
			confidence := resp.OptimalRoute.Confidence
			if confidence == 0 {
				confidence = resp.ConfidenceScore
			}
			if r := buildRoute(resp.OptimalRoute.Path, resp.OptimalRoute.DistanceKm, resp.OptimalRoute.EstimatedTimeMin, routing.AIOptimized, confidence); r != nil {
				routes = append(routes, r)
			}
		}
		for _, alt := range resp.AlternativeRoutes {
			if r := buildRoute(alt.Path, alt.DistanceKm, alt.EstimatedTimeMin, routing.Alternative, resp.ConfidenceScore); r != nil {
				routes = append(routes, r)
			}
		}
	}

	if resp, err := s.backend.StartEndRoute(ctx, req); err != nil {
		s.logger.Warn("start/end planner unavailable", zap.Error(err))
	} else {
		if r := buildRoute(resp.Path, resp.DistanceKm, resp.EstimatedTimeMin, routing.Enhanced, 0.8); r != nil {
			routes = append(routes, r)
		}
	}

	return routes
}

// routerRoutes queries the road router and classifies the alternatives: the
// primary is OPTIMAL, the fastest remaining alternative is TIME_SAVER, the
// longest is SCENIC, anything else is ALTERNATIVE.
func (s *RoutesService) routerRoutes(ctx context.Context, start, end geo.Point) []*routing.Route {
	if s.router == nil {
		return nil
	}

	data, err := s.router.Route(ctx, start, end)
	if err != nil {
		s.logger.Warn("road router unavailable", zap.Error(err))
		return nil
	}

	routes := make([]*routing.Route, 0, len(data))
	for i, rd := range data {
		if len(rd.Geometry) < 2 || rd.DistanceMeters <= 0 || rd.DurationSeconds <= 0 {
			continue
		}
		r := &routing.Route{
			Geometry:        rd.Geometry,
			DistanceMeters:  rd.DistanceMeters,
			DurationSeconds: rd.DurationSeconds,
			Type:            routing.Alternative,
			Confidence:      0.85,
		}
		if i == 0 {
			r.Type = routing.Optimal
			r.Confidence = 0.9
		}
		if err := r.ComputeBounds(); err != nil {
			continue
		}
		routes = append(routes, r)
	}

	classifyAlternatives(routes)
	return routes
}

// classifyAlternatives relabels non-primary routes in place.
func classifyAlternatives(routes []*routing.Route) {
	var alts []*routing.Route
	for _, r := range routes {
		if r.Type == routing.Alternative {
			alts = append(alts, r)
		}
	}
	if len(alts) == 0 {
		return
	}

	fastest := alts[0]
	longest := alts[0]
	for _, r := range alts[1:] {
		if r.DurationSeconds < fastest.DurationSeconds {
			fastest = r
		}
		if r.DistanceMeters > longest.DistanceMeters {
			longest = r
		}
	}
	fastest.Type = routing.TimeSaver
	if longest != fastest {
		longest.Type = routing.Scenic
	}
}

// buildRoute converts a backend path in km/min units into a route. Paths too
// short to draw are discarded.
func buildRoute(path []backend.LatLng, distanceKm, timeMin float64, t routing.RouteType, confidence float64) *routing.Route {
	if len(path) < 2 || distanceKm <= 0 || timeMin <= 0 {
		return nil
	}
	geometry := make([]geo.Point, len(path))
	for i, p := range path {
		geometry[i] = geo.Point{Latitude: p.Lat, Longitude: p.Lng}
	}
	r := &routing.Route{
		Geometry:        geometry,
		DistanceMeters:  distanceKm * 1000,
		DurationSeconds: timeMin * 60,
		Type:            t,
		Confidence:      confidence,
	}
	if err := r.ComputeBounds(); err != nil {
		return nil
	}
	return r
}

// fallbackRoute synthesizes a curved direct route between the endpoints. The
// control point is the perturbed midpoint, so the path looks plausible
// instead of ruler-straight. The ETA assumes typical urban speed.
func (s *RoutesService) fallbackRoute(start, end geo.Point) (*routing.Route, error) {
	mid := geo.Interpolate(start, end, 0.5)

	s.mu.Lock()
	mid.Latitude += (s.rng.Float64() - 0.5) * 0.004
	mid.Longitude += (s.rng.Float64() - 0.5) * 0.004
	s.mu.Unlock()

	geometry := geo.QuadraticBezier(start, mid, end, fallbackSamples)
	distance, err := geo.PathLength(geometry)
	if err != nil || distance <= 0 {
		return nil, fmt.Errorf("fallback route synthesis failed")
	}

	r := &routing.Route{
		Geometry:        geometry,
		DistanceMeters:  distance,
		DurationSeconds: distance / (s.avgSpeedKmh * 1000 / 3600),
		Type:            routing.Direct,
		Confidence:      fallbackConfidence,
		IsFallback:      true,
	}
	if err := r.ComputeBounds(start, end); err != nil {
		return nil, err
	}
	return r, nil
}

// NewSession creates an empty planning session for a user.
func (s *RoutesService) NewSession(userID string) *RouteSession {
	sess := &RouteSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		UpdatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Session returns a snapshot of the session, or false if unknown.
func (s *RoutesService) Session(id string) (RouteSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return RouteSession{}, false
	}
	return *sess, true
}

// SetEndpoints updates a session's start and end, discarding previously
// acquired routes, recommendations, and the selection. Recalculation is
// debounced so rapid endpoint edits coalesce into one acquisition; with a
// zero debounce it runs synchronously.
func (s *RoutesService) SetEndpoints(ctx context.Context, sessionID string, start, end geo.Point) error {
	if !geo.IsValid(start) || !geo.IsValid(end) {
		return fmt.Errorf("set endpoints: invalid coordinates")
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown session %q", sessionID)
	}
	sess.Start = &start
	sess.End = &end
	sess.Routes = nil
	sess.Recommendations = nil
	sess.Selected = nil
	sess.UpdatedAt = s.now()

	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}

	if s.debounce <= 0 {
		s.mu.Unlock()
		return s.Recalculate(ctx, sessionID)
	}

	s.timers[sessionID] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.timers, sessionID)
		s.mu.Unlock()

		recalcCtx, cancel := context.WithTimeout(context.Background(), recalcTimeout)
		defer cancel()
		if err := s.Recalculate(recalcCtx, sessionID); err != nil {
			s.logger.Warn("debounced route recalculation failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	})
	s.mu.Unlock()
	return nil
}

// Recalculate acquires routes for the session's current endpoints and
// refreshes its recommendations.
func (s *RoutesService) Recalculate(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if sess.Start == nil || sess.End == nil {
		s.mu.Unlock()
		return fmt.Errorf("session %q has no endpoints", sessionID)
	}
	start, end, userID := *sess.Start, *sess.End, sess.UserID
	s.mu.Unlock()

	routes, err := s.AcquireRoutes(ctx, start, end, userID)
	if err != nil {
		return err
	}
	recs := routing.Recommend(routes)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok = s.sessions[sessionID]
	if !ok {
		return nil
	}
	// Endpoints changed while we were fetching; the result is stale.
	if sess.Start == nil || sess.End == nil || *sess.Start != start || *sess.End != end {
		return nil
	}
	sess.Routes = routes
	sess.Recommendations = recs
	sess.Selected = nil
	sess.UpdatedAt = s.now()
	return nil
}

// SelectRoute marks the route at the given index as the session's choice.
func (s *RoutesService) SelectRoute(sessionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if index < 0 || index >= len(sess.Routes) {
		return fmt.Errorf("route index %d out of range", index)
	}
	sess.Selected = sess.Routes[index]
	sess.UpdatedAt = s.now()
	return nil
}

// DropSession removes a session and cancels any pending recalculation.
func (s *RoutesService) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
	delete(s.sessions, sessionID)
}
