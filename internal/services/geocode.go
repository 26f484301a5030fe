package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/clients/nominatim"
	"github.com/nammatraffic/server/internal/config"
	"github.com/nammatraffic/server/internal/lib/geo"
	"github.com/nammatraffic/server/internal/lib/match"
)

// Location sources, in decreasing order of trust.
const (
	SourceGazetteer   = "gazetteer"
	SourceExternal    = "external"
	SourceApproximate = "approximate"
)

// CandidateLocation is a resolved place with provenance.
type CandidateLocation struct {
	Name       string  `json:"name"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lng"`
	Source     string  `json:"source"`
	MatchScore float64 `json:"match_score"`
}

// placeSearcher is the slice of the Nominatim client the resolver needs.
type placeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]nominatim.Place, error)
}

// GeocodeService resolves free-form place names to coordinates. It tries the
// fixed gazetteer with fuzzy matching first, then the external geocoder, and
// as a last resort fabricates an approximate location near a known place so
// that route planning still has something to work with.
type GeocodeService struct {
	gazetteer []config.KnownLocation
	names     []string
	searcher  placeSearcher
	logger    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGeocodeService creates a resolver over the given gazetteer.
func NewGeocodeService(gazetteer []config.KnownLocation, searcher placeSearcher, rng *rand.Rand, logger *zap.Logger) *GeocodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	names := make([]string, len(gazetteer))
	for i, loc := range gazetteer {
		names[i] = loc.Name
	}
	return &GeocodeService{
		gazetteer: gazetteer,
		names:     names,
		searcher:  searcher,
		logger:    logger,
		rng:       rng,
	}
}

// Resolve maps a place query to a single location. It never returns an error
// for an unrecognized place unless the query itself is empty; unrecognized
// places get an approximate location instead.
func (s *GeocodeService) Resolve(ctx context.Context, query string) (CandidateLocation, error) {
	if query == "" {
		return CandidateLocation{}, fmt.Errorf("resolve place: %w", ErrNoMatchFound)
	}

	if cand, ok := match.Best(query, s.names); ok {
		loc := s.gazetteer[cand.Index]
		return CandidateLocation{
			Name:       loc.Name,
			Latitude:   loc.Lat,
			Longitude:  loc.Lng,
			Source:     SourceGazetteer,
			MatchScore: cand.Score,
		}, nil
	}

	if s.searcher != nil {
		places, err := s.searcher.Search(ctx, query, 1)
		if err != nil {
			s.logger.Warn("external geocoder failed", zap.String("query", query), zap.Error(err))
		} else if len(places) > 0 {
			p := places[0]
			return CandidateLocation{
				Name:       p.DisplayName,
				Latitude:   p.Latitude,
				Longitude:  p.Longitude,
				Source:     SourceExternal,
				MatchScore: match.Score(query, p.DisplayName),
			}, nil
		}
	}

	return s.approximate(query)
}

// Candidates returns up to limit scored gazetteer suggestions for a query,
// best first. Used by the place lookup endpoint for typeahead.
func (s *GeocodeService) Candidates(query string, limit int) []CandidateLocation {
	if query == "" || limit <= 0 {
		return nil
	}

	scored := make([]CandidateLocation, 0, len(s.gazetteer))
	for _, loc := range s.gazetteer {
		score := match.Score(query, loc.Name)
		if score <= match.AcceptThreshold {
			continue
		}
		scored = append(scored, CandidateLocation{
			Name:       loc.Name,
			Latitude:   loc.Lat,
			Longitude:  loc.Lng,
			Source:     SourceGazetteer,
			MatchScore: score,
		})
	}

	// Insertion sort by descending score; the gazetteer is small.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].MatchScore > scored[j-1].MatchScore; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// approximate picks a random gazetteer entry and jitters it slightly. The
// result is clearly labeled so callers can surface the uncertainty.
func (s *GeocodeService) approximate(query string) (CandidateLocation, error) {
	if len(s.gazetteer) == 0 {
		return CandidateLocation{}, fmt.Errorf("resolve %q: %w", query, ErrNoMatchFound)
	}

	s.mu.Lock()
	base := s.gazetteer[s.rng.Intn(len(s.gazetteer))]
	jitterLat := (s.rng.Float64() - 0.5) * 0.01
	jitterLng := (s.rng.Float64() - 0.5) * 0.01
	s.mu.Unlock()

	loc := CandidateLocation{
		Name:       fmt.Sprintf("%s (near %s)", query, base.Name),
		Latitude:   base.Lat + jitterLat,
		Longitude:  base.Lng + jitterLng,
		Source:     SourceApproximate,
		MatchScore: 0.1,
	}
	if !geo.IsValid(geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}) {
		loc.Latitude = base.Lat
		loc.Longitude = base.Lng
	}

	s.logger.Warn("place not recognized, using approximate location",
		zap.String("query", query),
		zap.String("near", base.Name))
	return loc, nil
}
