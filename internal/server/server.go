// Package server exposes the traffic, routing, and geocoding services over a
// JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/lib/geo"
	"github.com/nammatraffic/server/internal/services"
)

// Server routes API requests to the underlying services.
type Server struct {
	traffic     *services.TrafficService
	routes      *services.RoutesService
	geocode     *services.GeocodeService
	corsOrigins []string
	logger      *zap.Logger
}

// New creates the HTTP server facade.
func New(traffic *services.TrafficService, routes *services.RoutesService, geocode *services.GeocodeService, corsOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		traffic:     traffic,
		routes:      routes,
		geocode:     geocode,
		corsOrigins: corsOrigins,
		logger:      logger,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/points", s.handlePoints)
	mux.HandleFunc("GET /api/v1/signals", s.handleSignals)
	mux.HandleFunc("POST /api/v1/observations", s.handleSubmitObservation)
	mux.HandleFunc("GET /api/v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /api/v1/collective", s.handleCollective)
	mux.HandleFunc("GET /api/v1/network", s.handleRoadNetwork)
	mux.HandleFunc("POST /api/v1/routes", s.handlePlanRoutes)
	mux.HandleFunc("GET /api/v1/routes", s.handleGetRoutes)
	mux.HandleFunc("POST /api/v1/routes/select", s.handleSelectRoute)
	mux.HandleFunc("GET /api/v1/recommendations", s.handleRecommendations)

	return s.withCORS(s.withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"points":  s.traffic.Points(),
		"stats":   s.traffic.Stats(),
		"status":  s.traffic.Status(),
		"users":   s.traffic.ActiveUserCount(),
		"cameras": s.traffic.ActiveCameraCount(),
		"success": true,
	})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals := s.traffic.Signals()
	_, ambulance := s.traffic.LaneTotals()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals":            signals,
		"ambulance_detected": ambulance,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"success":            true,
	})
}

func (s *Server) handleSubmitObservation(w http.ResponseWriter, r *http.Request) {
	var report services.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merged, err := s.traffic.Submit(r.Context(), report)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"point":   merged,
		"signals": s.traffic.Signals(),
		"stats":   s.traffic.Stats(),
		"success": true,
	})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	resolved, err := s.geocode.Resolve(r.Context(), query)
	if err != nil {
		if errors.Is(err, services.ErrNoMatchFound) {
			s.writeError(w, http.StatusNotFound, "no match found")
			return
		}
		s.writeError(w, http.StatusBadGateway, "geocoding failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":     resolved,
		"candidates": s.geocode.Candidates(query, limit),
		"success":    true,
	})
}

func (s *Server) handleRoadNetwork(w http.ResponseWriter, r *http.Request) {
	network, err := s.traffic.RoadNetwork(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "road network unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, network)
}

func (s *Server) handleCollective(w http.ResponseWriter, r *http.Request) {
	collective, ok := s.traffic.Collective()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "no collective snapshot available")
		return
	}
	s.writeJSON(w, http.StatusOK, collective)
}

// planRoutesRequest accepts either coordinates or place names per endpoint.
type planRoutesRequest struct {
	SessionID string     `json:"session_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Start     *geo.Point `json:"start,omitempty"`
	End       *geo.Point `json:"end,omitempty"`
	StartName string     `json:"start_name,omitempty"`
	EndName   string     `json:"end_name,omitempty"`
}

func (s *Server) handlePlanRoutes(w http.ResponseWriter, r *http.Request) {
	var req planRoutesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := s.resolveEndpoint(r, req.Start, req.StartName)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unresolvable start: "+err.Error())
		return
	}
	end, err := s.resolveEndpoint(r, req.End, req.EndName)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unresolvable end: "+err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.routes.NewSession(req.UserID).ID
	}

	if err := s.routes.SetEndpoints(r.Context(), sessionID, start, end); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, ok := s.routes.Session(sessionID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"success": true,
	})
}

func (s *Server) resolveEndpoint(r *http.Request, point *geo.Point, name string) (geo.Point, error) {
	if point != nil {
		if !geo.IsValid(*point) {
			return geo.Point{}, errors.New("coordinates out of range")
		}
		return *point, nil
	}
	loc, err := s.geocode.Resolve(r.Context(), name)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

func (s *Server) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromQuery(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"success": true,
	})
}

type selectRouteRequest struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
}

func (s *Server) handleSelectRoute(w http.ResponseWriter, r *http.Request) {
	var req selectRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.routes.SelectRoute(req.SessionID, req.Index); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, _ := s.routes.Session(req.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"success": true,
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromQuery(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": sess.Recommendations,
		"success":         true,
	})
}

func (s *Server) sessionFromQuery(w http.ResponseWriter, r *http.Request) (services.RouteSession, bool) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing query parameter session_id")
		return services.RouteSession{}, false
	}
	sess, ok := s.routes.Session(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown session")
		return services.RouteSession{}, false
	}
	return sess, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   message,
		"success": false,
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	allowed := "*"
	if len(s.corsOrigins) == 1 {
		allowed = s.corsOrigins[0]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
