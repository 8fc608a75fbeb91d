package monitor

import (
	"fmt"
	"math"
)

// CoordinateLookup resolves an IATA code to a position when the provider
// sent none.
type CoordinateLookup func(code string) (Coordinate, bool)

// Marker is a labelled point on the route map.
type Marker struct {
	Title    string
	Snippet  string
	Position Coordinate
}

// Bounds is the smallest box holding every marker.
type Bounds struct {
	SouthWest Coordinate
	NorthEast Coordinate
}

// Camera is where the map should look. Zoom is zero when the camera fits
// Bounds instead.
type Camera struct {
	Center Coordinate
	Zoom   float64
	Bounds *Bounds
}

// LiveZoom is the zoom level used when following an airborne flight.
const LiveZoom = 5

// MapOverlay is everything needed to draw one flight on a map.
type MapOverlay struct {
	Departure  Marker
	Arrival    Marker
	Live       *Marker
	Polyline   []Coordinate
	DistanceKm float64
	Camera     Camera
}

// BuildOverlay places both airports, using provider geolocation first and
// lookup second. It returns false when either airport cannot be placed.
func BuildOverlay(f Flight, lookup CoordinateLookup) (*MapOverlay, bool) {
	dep, ok := endpointPosition(f.Departure, lookup)
	if !ok {
		return nil, false
	}
	arr, ok := endpointPosition(f.Arrival, lookup)
	if !ok {
		return nil, false
	}

	o := &MapOverlay{
		Departure:  Marker{Title: f.Departure.IATA, Snippet: f.Departure.Airport, Position: dep},
		Arrival:    Marker{Title: f.Arrival.IATA, Snippet: f.Arrival.Airport, Position: arr},
		Polyline:   []Coordinate{dep, arr},
		DistanceKm: HaversineKm(dep, arr),
	}

	if f.Live != nil && f.Status == StatusActive {
		o.Live = &Marker{Title: f.Number, Snippet: "Current Position", Position: f.Live.Position}
		o.Camera = Camera{Center: f.Live.Position, Zoom: LiveZoom}
		return o, true
	}

	b := Bounds{
		SouthWest: Coordinate{Lat: math.Min(dep.Lat, arr.Lat), Lon: math.Min(dep.Lon, arr.Lon)},
		NorthEast: Coordinate{Lat: math.Max(dep.Lat, arr.Lat), Lon: math.Max(dep.Lon, arr.Lon)},
	}
	o.Camera = Camera{
		Center: Coordinate{Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2, Lon: (b.SouthWest.Lon + b.NorthEast.Lon) / 2},
		Bounds: &b,
	}
	return o, true
}

func endpointPosition(e Endpoint, lookup CoordinateLookup) (Coordinate, bool) {
	if e.Location != nil {
		return *e.Location, true
	}
	if lookup == nil {
		return Coordinate{}, false
	}
	return lookup(e.IATA)
}

// MapURL links to the camera view on openstreetmap.org.
func (o *MapOverlay) MapURL() string {
	if b := o.Camera.Bounds; b != nil {
		return fmt.Sprintf("https://www.openstreetmap.org/?minlon=%.4f&minlat=%.4f&maxlon=%.4f&maxlat=%.4f",
			b.SouthWest.Lon, b.SouthWest.Lat, b.NorthEast.Lon, b.NorthEast.Lat)
	}
	c := o.Camera.Center
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.4f&mlon=%.4f#map=%d/%.4f/%.4f",
		c.Lat, c.Lon, int(o.Camera.Zoom), c.Lat, c.Lon)
}

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between a and b.
func HaversineKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
