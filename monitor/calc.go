package monitor

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Duration / delay arithmetic
// ═══════════════════════════════════════════════════════════════════════════

// DurationMinutes returns the whole minutes from start to end, truncated
// toward zero. It is negative when end precedes start; callers passing
// reversed timestamps get a negative value back, not an error.
//
//	09:00 → 11:30 →  150
//	11:30 → 09:00 → -150
func DurationMinutes(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}

// FormatDuration renders minutes as "2h 5m", or "59m" below one hour.
//
// Negative input is not normalized: -90 renders as "-30m" because the
// hour component only appears from 60 upwards.
func FormatDuration(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes%60)
}

// FormatDelay renders an optional delay in minutes.
//
//	nil → "No delay"
//	≤ 0 → "On time"
//	25  → "+25m"
func FormatDelay(delay *int) string {
	switch {
	case delay == nil:
		return "No delay"
	case *delay <= 0:
		return "On time"
	default:
		return "+" + FormatDuration(*delay)
	}
}

// AdjustedDuration corrects a scheduled duration by the two delays. A
// flight that left late but arrived on time flew faster than planned.
//
//	(120, 10, 0)   → 110
//	(120, 0, 10)   → 130
//	(120, nil, nil) → 120
func AdjustedDuration(scheduled int, departureDelay, arrivalDelay *int) int {
	dep, arr := 0, 0
	if departureDelay != nil {
		dep = *departureDelay
	}
	if arrivalDelay != nil {
		arr = *arrivalDelay
	}
	return scheduled + (arr - dep)
}

// FormatAverage renders a fractional average, dropping the fraction.
func FormatAverage(minutes float64) string {
	return FormatDuration(int(minutes))
}
