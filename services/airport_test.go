package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flighttrack/monitor"
)

func TestLookupCoordinate(t *testing.T) {
	c, ok := LookupCoordinate("JFK")
	require.True(t, ok)
	assert.InDelta(t, 40.64, c.Lat, 0.01)
	assert.InDelta(t, -73.78, c.Lon, 0.01)

	c, ok = LookupCoordinate(" lax ")
	require.True(t, ok)
	assert.InDelta(t, 33.94, c.Lat, 0.01)

	c, ok = LookupCoordinate("XXX")
	assert.False(t, ok)
	assert.Equal(t, monitor.Coordinate{}, c)
}

func TestFallbackTableCoversDefaultRoutes(t *testing.T) {
	for _, r := range monitor.DefaultRoutes() {
		assert.True(t, IsKnownAirport(r.Departure), r.Departure)
		assert.True(t, IsKnownAirport(r.Arrival), r.Arrival)
	}
}

func TestFallbackTableEntries(t *testing.T) {
	codes := KnownAirports()
	assert.GreaterOrEqual(t, len(codes), 30)
	assert.IsIncreasing(t, codes)

	for _, code := range codes {
		a, ok := LookupAirport(code)
		require.True(t, ok)
		assert.Equal(t, code, a.IATA)
		assert.True(t, monitor.IsValidAirportCode(code), code)
		assert.NotEqual(t, monitor.Coordinate{}, a.Position, "%s has no position", code)
		assert.True(t, a.Position.Lat >= -90 && a.Position.Lat <= 90, code)
		assert.True(t, a.Position.Lon >= -180 && a.Position.Lon <= 180, code)
	}
}
