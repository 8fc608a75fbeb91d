package monitor

import (
	"fmt"
	"strings"
	"time"

	"flighttrack/storage"
)

// NoDelayInformation is shown when neither endpoint reports a delay.
const NoDelayInformation = "No delay information"

// FlightView holds the display fields of one refresh pass.
type FlightView struct {
	FlightNumber  string
	Airline       string
	Status        string
	Departure     string
	Arrival       string
	DepartureTime string // HH:MM or N/A
	ArrivalTime   string
	Duration      string // scheduled, or N/A
	Delay         string
	Overlay       *MapOverlay
	Record        storage.FlightRecord
	UpdatedAt     time.Time
}

// NewFlightView derives the display fields of f.
func NewFlightView(f Flight, lookup CoordinateLookup, now time.Time) FlightView {
	v := FlightView{
		FlightNumber:  f.Number,
		Airline:       f.Airline,
		Status:        f.Status,
		Departure:     f.Departure.IATA,
		Arrival:       f.Arrival.IATA,
		DepartureTime: "N/A",
		ArrivalTime:   "N/A",
		Duration:      "N/A",
		Record:        RecordFromFlight(f, now),
		UpdatedAt:     now,
	}
	if v.Status == "" {
		v.Status = "Unknown"
	}

	dep, depOK := ParseTimestamp(f.Departure.Scheduled)
	arr, arrOK := ParseTimestamp(f.Arrival.Scheduled)
	if depOK {
		v.DepartureTime = dep.Format("15:04")
	}
	if arrOK {
		v.ArrivalTime = arr.Format("15:04")
	}
	if depOK && arrOK {
		v.Duration = FormatDuration(DurationMinutes(dep, arr))
	}

	switch {
	case f.Departure.Delay != nil:
		v.Delay = FormatDelay(f.Departure.Delay)
	case f.Arrival.Delay != nil:
		v.Delay = FormatDelay(f.Arrival.Delay)
	default:
		v.Delay = NoDelayInformation
	}

	if o, ok := BuildOverlay(f, lookup); ok {
		v.Overlay = o
	}
	return v
}

// Markdown renders v for a Telegram message.
func (v FlightView) Markdown() string {
	var b strings.Builder
	b.Grow(600)

	fmt.Fprintf(&b, "✈️ *%s*", v.FlightNumber)
	if v.Airline != "" {
		fmt.Fprintf(&b, " · %s", v.Airline)
	}
	fmt.Fprintf(&b, "\n📍 %s → %s\n\n", v.Departure, v.Arrival)

	b.WriteString("```\n")
	fmt.Fprintf(&b, "Status    : %s\n", v.Status)
	fmt.Fprintf(&b, "Departure : %s %s\n", v.Departure, v.DepartureTime)
	fmt.Fprintf(&b, "Arrival   : %s %s\n", v.Arrival, v.ArrivalTime)
	fmt.Fprintf(&b, "Duration  : %s\n", v.Duration)
	fmt.Fprintf(&b, "Delay     : %s\n", v.Delay)
	if v.Overlay != nil {
		fmt.Fprintf(&b, "Distance  : %.0f km\n", v.Overlay.DistanceKm)
		if v.Overlay.Live != nil {
			fmt.Fprintf(&b, "Position  : %s\n", v.Overlay.Live.Position)
		}
	}
	b.WriteString("```\n")

	if v.Overlay != nil {
		fmt.Fprintf(&b, "🗺 [Route map](%s)\n", v.Overlay.MapURL())
	}
	fmt.Fprintf(&b, "\n_Updated %s UTC_", v.UpdatedAt.UTC().Format("15:04:05"))
	return b.String()
}

// Text renders v for a terminal.
func (v FlightView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s → %s  [%s]\n", v.FlightNumber, v.Departure, v.Arrival, v.Status)
	fmt.Fprintf(&b, "  departure  %s\n", v.DepartureTime)
	fmt.Fprintf(&b, "  arrival    %s\n", v.ArrivalTime)
	fmt.Fprintf(&b, "  duration   %s\n", v.Duration)
	fmt.Fprintf(&b, "  delay      %s\n", v.Delay)
	if v.Overlay != nil {
		fmt.Fprintf(&b, "  distance   %.0f km\n", v.Overlay.DistanceKm)
		fmt.Fprintf(&b, "  map        %s\n", v.Overlay.MapURL())
	}
	return b.String()
}

// ═══════════════════════════════════════════════════════════════════════════
// Statistics and route listings
// ═══════════════════════════════════════════════════════════════════════════

// FormatRouteStatistics renders the per-route averages.
func FormatRouteStatistics(stats []storage.RouteStatistic) string {
	if len(stats) == 0 {
		return "📊 *ROUTE STATISTICS*\n_No flight data collected yet._"
	}
	var b strings.Builder
	b.WriteString("📊 *ROUTE STATISTICS*\n```\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%s-%s : %-8s (n=%d)\n", s.Departure, s.Arrival, FormatAverage(s.AverageMinutes), s.Samples)
	}
	b.WriteString("```")
	return b.String()
}

// FormatRouteRecords lists up to limit records of one route, newest first.
func FormatRouteRecords(dep, arr string, records []storage.FlightRecord, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛫 *%s → %s*\n", dep, arr)
	if len(records) == 0 {
		b.WriteString("_No records for this route._")
		return b.String()
	}

	b.WriteString("```\n")
	for i, r := range records {
		if limit > 0 && i == limit {
			fmt.Fprintf(&b, "… %d more\n", len(records)-limit)
			break
		}
		actual := "N/A"
		if r.ActualDuration != nil {
			actual = FormatDuration(*r.ActualDuration)
		}
		fmt.Fprintf(&b, "%s %-7s sched %-7s actual %-7s dep %s arr %s\n",
			r.FlightDate.UTC().Format("01-02"), r.FlightNumber,
			FormatDuration(r.ScheduledDuration), actual,
			FormatDelay(r.DepartureDelay), FormatDelay(r.ArrivalDelay))
	}
	b.WriteString("```")
	return b.String()
}
