package monitor

import (
	"strings"
	"time"

	"flighttrack/storage"
)

const (
	providerLayout = "2006-01-02T15:04:05"
	dateLayout     = "2006-01-02"
)

// ParseTimestamp reads a provider timestamp. AviationStack sends RFC 3339
// with an offset; anything carrying at least "YYYY-MM-DDTHH:MM:SS" is
// accepted as UTC wall time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if len(s) >= len(providerLayout) {
		if t, err := time.Parse(providerLayout, s[:len(providerLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseOptional(s string) *time.Time {
	t, ok := ParseTimestamp(s)
	if !ok {
		return nil
	}
	return &t
}

// RecordFromFlight normalizes a provider result into a storable record.
// A missing or unreadable scheduled time becomes now; a missing actual
// time leaves the actual fields absent. Parsing never fails.
func RecordFromFlight(f Flight, now time.Time) storage.FlightRecord {
	now = now.UTC()

	schedDep, ok := ParseTimestamp(f.Departure.Scheduled)
	if !ok {
		schedDep = now
	}
	schedArr, ok := ParseTimestamp(f.Arrival.Scheduled)
	if !ok {
		schedArr = now
	}
	actDep := parseOptional(f.Departure.Actual)
	actArr := parseOptional(f.Arrival.Actual)

	var actualDuration *int
	if actDep != nil && actArr != nil {
		d := DurationMinutes(*actDep, *actArr)
		actualDuration = &d
	}

	flightDate, err := time.Parse(dateLayout, strings.TrimSpace(f.Date))
	if err != nil {
		flightDate = now
	}

	status := f.Status
	if status == "" {
		status = storage.StatusUnknown
	}

	return storage.FlightRecord{
		FlightNumber:       f.Number,
		FlightDate:         flightDate,
		DepartureAirport:   f.Departure.IATA,
		ArrivalAirport:     f.Arrival.IATA,
		ScheduledDeparture: schedDep,
		ScheduledArrival:   schedArr,
		ActualDeparture:    actDep,
		ActualArrival:      actArr,
		DepartureDelay:     f.Departure.Delay,
		ArrivalDelay:       f.Arrival.Delay,
		ScheduledDuration:  DurationMinutes(schedDep, schedArr),
		ActualDuration:     actualDuration,
		Status:             status,
		CollectedAt:        now,
	}
}
