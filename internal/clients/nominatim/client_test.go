package nominatim

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "MG Road Bengaluru", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		fmt.Fprint(w, `[
			{"lat":"12.9758","lon":"77.6096","display_name":"MG Road, Bengaluru, Karnataka"},
			{"lat":"12.9760","lon":"77.6050","display_name":"MG Road Metro Station, Bengaluru"}
		]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	places, err := client.Search(context.Background(), "MG Road Bengaluru", 5)
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "MG Road, Bengaluru, Karnataka", places[0].DisplayName)
	assert.InDelta(t, 12.9758, places[0].Latitude, 0.0001)
	assert.InDelta(t, 77.6096, places[0].Longitude, 0.0001)
}

func TestSearch_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	places, err := client.Search(context.Background(), "nowhere at all", 5)
	require.NoError(t, err, "Empty result set is not an error")
	assert.Empty(t, places)
}

func TestSearch_SkipsUnparseableCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"lat":"not-a-number","lon":"77.6","display_name":"Broken"},
			{"lat":"12.9","lon":"77.6","display_name":"Good"}
		]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	places, err := client.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Good", places[0].DisplayName)
}

func TestSearch_EmptyQuery(t *testing.T) {
	client := NewClient("http://unused.invalid", time.Second)
	_, err := client.Search(context.Background(), "", 5)
	assert.Error(t, err)
}
