package routing

import (
	"fmt"
)

// Recommend ranks the candidate routes for the current start/end pair into an
// ordered recommendation list. At most one route is selected per category, in
// priority order AI_OPTIMIZED > ENHANCED > TIME_SAVER > DISTANCE_SAVER. A
// category is skipped when its candidate is the same route object already
// claimed by a higher-priority category. Routes without positive distance and
// duration are excluded up front; with no valid route the list is empty.
//
// De-duplication is by pointer identity: two numerically identical routes
// fetched independently are distinct objects and may both appear.
func Recommend(routes []*Route) []Recommendation {
	valid := make([]*Route, 0, len(routes))
	for _, r := range routes {
		if r.Usable() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	var recs []Recommendation
	claimed := make(map[*Route]bool)

	claim := func(r *Route, category RouteType, description string) {
		if r == nil || claimed[r] {
			return
		}
		claimed[r] = true
		recs = append(recs, Recommendation{
			Category:    category,
			Route:       r,
			Description: description,
		})
	}

	claim(firstOfType(valid, AIOptimized), AIOptimized,
		"Optimized using collective traffic from all active users")
	claim(firstOfType(valid, Enhanced), Enhanced,
		"Enhanced with live lane-level traffic conditions")

	if fastest := minBy(valid, func(r *Route) float64 { return r.DurationSeconds }); fastest != nil {
		claim(fastest, TimeSaver,
			fmt.Sprintf("Fastest option, about %.0f min", fastest.DurationSeconds/60))
	}
	if shortest := minBy(valid, func(r *Route) float64 { return r.DistanceMeters }); shortest != nil {
		claim(shortest, DistanceSaver,
			fmt.Sprintf("Shortest option, %.1f km", shortest.DistanceMeters/1000))
	}

	return recs
}

// firstOfType returns the first route of the given type, or nil.
func firstOfType(routes []*Route, t RouteType) *Route {
	for _, r := range routes {
		if r.Type == t {
			return r
		}
	}
	return nil
}

// minBy returns the route minimizing key, earliest wins ties.
func minBy(routes []*Route, key func(*Route) float64) *Route {
	var best *Route
	for _, r := range routes {
		if best == nil || key(r) < key(best) {
			best = r
		}
	}
	return best
}
