package monitor

import (
	"context"
	"fmt"
	"time"

	"flighttrack/storage"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider-facing types
// ═══════════════════════════════════════════════════════════════════════════

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Endpoint is one end of a flight as the provider reports it. Timestamps
// are kept raw; RecordFromFlight decides how to read them.
type Endpoint struct {
	IATA     string
	Airport  string
	Timezone string
	Terminal string
	Gate     string

	Delay *int // minutes

	Scheduled string
	Estimated string
	Actual    string

	// Location is nil when the provider sent no geolocation.
	Location *Coordinate
}

// Live is the in-flight position block.
type Live struct {
	Updated         time.Time
	Position        Coordinate
	Altitude        float64
	Direction       float64
	SpeedHorizontal float64
	IsGround        bool
}

// Flight is one provider result.
type Flight struct {
	Date      string // YYYY-MM-DD
	Status    string
	Number    string // IATA flight designator, e.g. AA123
	Airline   string
	Departure Endpoint
	Arrival   Endpoint
	Live      *Live
}

// StatusActive is the provider status of an airborne flight.
const StatusActive = "active"

// Provider looks flights up. Implementations return an error for both
// transport failures and non-success responses.
type Provider interface {
	LookupByNumber(ctx context.Context, flightNumber string) ([]Flight, error)
	LookupByRoute(ctx context.Context, dep, arr string) ([]Flight, error)
}

// RecordWriter is the slice of the store the ingestion paths write through.
type RecordWriter interface {
	InsertOrReplace(ctx context.Context, r *storage.FlightRecord) error
}

// ═══════════════════════════════════════════════════════════════════════════
// Job outcome
// ═══════════════════════════════════════════════════════════════════════════

// Outcome is what a unit of scheduled work reports back.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeRetry
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}
