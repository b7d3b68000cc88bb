package repositories

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeed(t *testing.T) {
	path := writeSeed(t, `{
		"locations": [
			{"id": "L1", "name": "Depot", "lat": -23.55, "lng": -46.63},
			{"id": "L2", "lat": -22.90, "lng": -43.17},
			{"id": "L3"}
		],
		"routes": [
			{"id": "R1", "points": [
				{"location_id": "L1", "stop_duration_minutes": 10},
				{"location_id": "L2"},
				{"location_id": "L3"}
			]}
		]
	}`)

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	locs := seed.DomainLocations()
	require.Len(t, locs, 3)
	_, ok := locs[2].Coordinates()
	assert.False(t, ok, "location without coordinates stays ungeocoded")

	points := seed.DomainRoutePoints()
	require.Len(t, points, 3)
	for i, p := range points {
		assert.Equal(t, "R1", p.RouteID)
		assert.Equal(t, i+1, p.Order)
		assert.NotEmpty(t, p.ID)
	}
	require.NotNil(t, points[0].StopDurationMinutes)
	assert.Equal(t, 10, *points[0].StopDurationMinutes)
}

func TestLoadSeed_RejectsUnknownLocation(t *testing.T) {
	path := writeSeed(t, `{
		"locations": [{"id": "L1"}],
		"routes": [{"id": "R1", "points": [{"location_id": "L9"}]}]
	}`)

	_, err := LoadSeed(path)
	assert.ErrorContains(t, err, "unknown location")
}

func TestLoadSeed_RejectsEmptyLocationID(t *testing.T) {
	path := writeSeed(t, `{"locations": [{"id": "  "}]}`)

	_, err := LoadSeed(path)
	assert.Error(t, err)
}
