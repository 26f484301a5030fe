package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/clients/nominatim"
	"github.com/nammatraffic/server/internal/config"
)

type stubSearcher struct {
	places []nominatim.Place
	err    error
	calls  int
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]nominatim.Place, error) {
	s.calls++
	return s.places, s.err
}

func testGazetteer() []config.KnownLocation {
	return []config.KnownLocation{
		{Name: "Majestic Bus Station", Lat: 12.9774, Lng: 77.5708},
		{Name: "MG Road", Lat: 12.9758, Lng: 77.6096},
		{Name: "Koramangala", Lat: 12.9352, Lng: 77.6245},
		{Name: "Indiranagar", Lat: 12.9719, Lng: 77.6412},
	}
}

func newTestGeocoder(searcher placeSearcher) *GeocodeService {
	return NewGeocodeService(testGazetteer(), searcher, rand.New(rand.NewSource(1)), zap.NewNop())
}

func TestResolveExactGazetteerMatch(t *testing.T) {
	searcher := &stubSearcher{}
	svc := newTestGeocoder(searcher)

	loc, err := svc.Resolve(context.Background(), "MG Road")
	require.NoError(t, err)

	assert.Equal(t, "MG Road", loc.Name)
	assert.Equal(t, SourceGazetteer, loc.Source)
	assert.Equal(t, 1.0, loc.MatchScore)
	assert.InDelta(t, 12.9758, loc.Latitude, 1e-9)
	assert.Zero(t, searcher.calls, "gazetteer hit should not reach the external geocoder")
}

func TestResolveFuzzyGazetteerMatch(t *testing.T) {
	svc := newTestGeocoder(&stubSearcher{})

	loc, err := svc.Resolve(context.Background(), "koramangla")
	require.NoError(t, err)

	assert.Equal(t, "Koramangala", loc.Name)
	assert.Equal(t, SourceGazetteer, loc.Source)
	assert.Greater(t, loc.MatchScore, 0.3)
}

func TestResolveFallsBackToExternalGeocoder(t *testing.T) {
	searcher := &stubSearcher{places: []nominatim.Place{
		{DisplayName: "Lalbagh Botanical Garden, Bengaluru", Latitude: 12.9507, Longitude: 77.5848},
	}}
	svc := newTestGeocoder(searcher)

	loc, err := svc.Resolve(context.Background(), "lalbagh botanical garden")
	require.NoError(t, err)

	assert.Equal(t, SourceExternal, loc.Source)
	assert.Equal(t, 1, searcher.calls)
	assert.InDelta(t, 12.9507, loc.Latitude, 1e-9)
	assert.InDelta(t, 77.5848, loc.Longitude, 1e-9)
}

func TestResolveApproximateWhenNothingMatches(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("boom")}
	svc := newTestGeocoder(searcher)

	loc, err := svc.Resolve(context.Background(), "xyzzyplace")
	require.NoError(t, err)

	assert.Equal(t, SourceApproximate, loc.Source)
	assert.Contains(t, loc.Name, "xyzzyplace")
	assert.InDelta(t, 0.1, loc.MatchScore, 1e-9)
	// Stays in the metro area: near one of the gazetteer entries.
	assert.InDelta(t, 12.97, loc.Latitude, 0.2)
	assert.InDelta(t, 77.62, loc.Longitude, 0.2)
}

func TestResolveApproximateIsDeterministicForSeed(t *testing.T) {
	a := newTestGeocoder(nil)
	b := newTestGeocoder(nil)

	locA, err := a.Resolve(context.Background(), "xyzzyplace")
	require.NoError(t, err)
	locB, err := b.Resolve(context.Background(), "xyzzyplace")
	require.NoError(t, err)

	assert.Equal(t, locA, locB)
}

func TestResolveApproximateWithDefaultRandomSource(t *testing.T) {
	svc := NewGeocodeService(testGazetteer(), nil, nil, nil)

	loc, err := svc.Resolve(context.Background(), "xyzzyplace")
	require.NoError(t, err)
	assert.Equal(t, SourceApproximate, loc.Source)
}

func TestResolveEmptyQuery(t *testing.T) {
	svc := newTestGeocoder(nil)

	_, err := svc.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrNoMatchFound)
}

func TestCandidatesRankedByScore(t *testing.T) {
	svc := newTestGeocoder(nil)

	got := svc.Candidates("road", 10)
	require.NotEmpty(t, got)
	assert.Equal(t, "MG Road", got[0].Name)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].MatchScore, got[i].MatchScore)
	}
}

func TestCandidatesHonorsLimit(t *testing.T) {
	svc := newTestGeocoder(nil)

	got := svc.Candidates("a", 2)
	assert.LessOrEqual(t, len(got), 2)
}
