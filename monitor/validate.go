package monitor

import (
	"errors"
	"fmt"
	"regexp"
)

// Input errors. They are returned before any network or storage access.
var (
	ErrInvalidFlightNumber = errors.New("invalid flight number")
	ErrInvalidAirportCode  = errors.New("invalid airport code")
	ErrInvalidRoute        = errors.New("invalid route")
)

var (
	// Airline designator (2 letters) + 3-4 digit flight number: AA123, DL4567.
	reFlightNumber = regexp.MustCompile(`^[A-Z]{2}[0-9]{3,4}$`)

	// IATA airport code: JFK, LAX.
	reAirportCode = regexp.MustCompile(`^[A-Z]{3}$`)
)

// IsValidFlightNumber reports whether s is two uppercase letters followed
// by three or four digits.
func IsValidFlightNumber(s string) bool {
	return reFlightNumber.MatchString(s)
}

// IsValidAirportCode reports whether s is exactly three uppercase letters.
func IsValidAirportCode(s string) bool {
	return reAirportCode.MatchString(s)
}

// IsValidRoute reports whether both codes are valid and differ. It does
// not check that the airports exist.
func IsValidRoute(dep, arr string) bool {
	return IsValidAirportCode(dep) && IsValidAirportCode(arr) && dep != arr
}

// ValidateFlightNumber wraps ErrInvalidFlightNumber with the offending input.
func ValidateFlightNumber(s string) error {
	if !IsValidFlightNumber(s) {
		return fmt.Errorf("%w %q: expected two letters and 3-4 digits, e.g. AA123", ErrInvalidFlightNumber, s)
	}
	return nil
}

// ValidateRoute explains why dep/arr is not a usable route.
func ValidateRoute(dep, arr string) error {
	switch {
	case !IsValidAirportCode(dep):
		return fmt.Errorf("%w %q: expected three uppercase letters, e.g. JFK", ErrInvalidAirportCode, dep)
	case !IsValidAirportCode(arr):
		return fmt.Errorf("%w %q: expected three uppercase letters, e.g. LAX", ErrInvalidAirportCode, arr)
	case dep == arr:
		return fmt.Errorf("%w: departure and arrival are both %s", ErrInvalidRoute, dep)
	}
	return nil
}
