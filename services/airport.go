package services

import (
	"sort"
	"strings"

	"flighttrack/monitor"
)

// Airport is an entry of the built-in coordinate table.
type Airport struct {
	IATA     string
	City     string
	Position monitor.Coordinate
}

// ═══════════════════════════════════════════════════════════════════════════
// Fallback coordinates, used when the provider omits airport geolocation
// ═══════════════════════════════════════════════════════════════════════════

var hardcodedAirports = map[string]Airport{
	// North America
	"JFK": {IATA: "JFK", City: "New York", Position: monitor.Coordinate{Lat: 40.6413, Lon: -73.7781}},
	"LAX": {IATA: "LAX", City: "Los Angeles", Position: monitor.Coordinate{Lat: 33.9416, Lon: -118.4085}},
	"SFO": {IATA: "SFO", City: "San Francisco", Position: monitor.Coordinate{Lat: 37.6213, Lon: -122.3790}},
	"ORD": {IATA: "ORD", City: "Chicago", Position: monitor.Coordinate{Lat: 41.9742, Lon: -87.9073}},
	"MIA": {IATA: "MIA", City: "Miami", Position: monitor.Coordinate{Lat: 25.7959, Lon: -80.2870}},
	"ATL": {IATA: "ATL", City: "Atlanta", Position: monitor.Coordinate{Lat: 33.6407, Lon: -84.4277}},
	"DEN": {IATA: "DEN", City: "Denver", Position: monitor.Coordinate{Lat: 39.8561, Lon: -104.6737}},
	"DFW": {IATA: "DFW", City: "Dallas", Position: monitor.Coordinate{Lat: 32.8998, Lon: -97.0403}},
	"SEA": {IATA: "SEA", City: "Seattle", Position: monitor.Coordinate{Lat: 47.4502, Lon: -122.3088}},
	"BOS": {IATA: "BOS", City: "Boston", Position: monitor.Coordinate{Lat: 42.3656, Lon: -71.0096}},
	"YYZ": {IATA: "YYZ", City: "Toronto", Position: monitor.Coordinate{Lat: 43.6777, Lon: -79.6248}},
	"MEX": {IATA: "MEX", City: "Mexico City", Position: monitor.Coordinate{Lat: 19.4361, Lon: -99.0719}},

	// Europe
	"LHR": {IATA: "LHR", City: "London", Position: monitor.Coordinate{Lat: 51.4700, Lon: -0.4543}},
	"CDG": {IATA: "CDG", City: "Paris", Position: monitor.Coordinate{Lat: 49.0097, Lon: 2.5479}},
	"FRA": {IATA: "FRA", City: "Frankfurt", Position: monitor.Coordinate{Lat: 50.0379, Lon: 8.5622}},
	"AMS": {IATA: "AMS", City: "Amsterdam", Position: monitor.Coordinate{Lat: 52.3105, Lon: 4.7683}},
	"MAD": {IATA: "MAD", City: "Madrid", Position: monitor.Coordinate{Lat: 40.4983, Lon: -3.5676}},
	"IST": {IATA: "IST", City: "Istanbul", Position: monitor.Coordinate{Lat: 41.2753, Lon: 28.7519}},

	// Asia / Middle East
	"DXB": {IATA: "DXB", City: "Dubai", Position: monitor.Coordinate{Lat: 25.2532, Lon: 55.3657}},
	"DEL": {IATA: "DEL", City: "Delhi", Position: monitor.Coordinate{Lat: 28.5562, Lon: 77.1000}},
	"BOM": {IATA: "BOM", City: "Mumbai", Position: monitor.Coordinate{Lat: 19.0896, Lon: 72.8656}},
	"SIN": {IATA: "SIN", City: "Singapore", Position: monitor.Coordinate{Lat: 1.3644, Lon: 103.9915}},
	"HND": {IATA: "HND", City: "Tokyo", Position: monitor.Coordinate{Lat: 35.5494, Lon: 139.7798}},
	"ICN": {IATA: "ICN", City: "Seoul", Position: monitor.Coordinate{Lat: 37.4602, Lon: 126.4407}},
	"HKG": {IATA: "HKG", City: "Hong Kong", Position: monitor.Coordinate{Lat: 22.3080, Lon: 113.9185}},
	"PEK": {IATA: "PEK", City: "Beijing", Position: monitor.Coordinate{Lat: 40.0799, Lon: 116.6031}},

	// Oceania
	"SYD": {IATA: "SYD", City: "Sydney", Position: monitor.Coordinate{Lat: -33.9399, Lon: 151.1753}},
	"AKL": {IATA: "AKL", City: "Auckland", Position: monitor.Coordinate{Lat: -37.0082, Lon: 174.7850}},

	// South America / Africa
	"GRU": {IATA: "GRU", City: "São Paulo", Position: monitor.Coordinate{Lat: -23.4356, Lon: -46.4731}},
	"EZE": {IATA: "EZE", City: "Buenos Aires", Position: monitor.Coordinate{Lat: -34.8222, Lon: -58.5358}},
	"JNB": {IATA: "JNB", City: "Johannesburg", Position: monitor.Coordinate{Lat: -26.1392, Lon: 28.2460}},
	"CAI": {IATA: "CAI", City: "Cairo", Position: monitor.Coordinate{Lat: 30.1219, Lon: 31.4056}},
}

// LookupCoordinate returns the position of a known airport. Codes are
// matched case-insensitively; unknown codes report false.
func LookupCoordinate(code string) (monitor.Coordinate, bool) {
	a, ok := hardcodedAirports[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return monitor.Coordinate{}, false
	}
	return a.Position, true
}

// LookupAirport returns the full table entry for code.
func LookupAirport(code string) (Airport, bool) {
	a, ok := hardcodedAirports[strings.ToUpper(strings.TrimSpace(code))]
	return a, ok
}

// IsKnownAirport returns true if the IATA code is in the table.
func IsKnownAirport(code string) bool {
	_, ok := LookupAirport(code)
	return ok
}

// KnownAirports lists every code in the table, sorted.
func KnownAirports() []string {
	codes := make([]string, 0, len(hardcodedAirports))
	for code := range hardcodedAirports {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
